package handler

import (
	"encoding/base64"

	"github.com/gin-gonic/gin"

	"payments-core/internal/handler/request"
	"payments-core/internal/handler/response"
	"payments-core/internal/pigeon"
	"payments-core/pkg/errno"
)

type PairHandler struct {
	exchange *pigeon.Exchange
}

func NewPairHandler(exchange *pigeon.Exchange) *PairHandler {
	return &PairHandler{exchange: exchange}
}

func decodePairingRequest(c *gin.Context) (*pigeon.PairingRequest, bool) {
	var req request.PairingActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return nil, false
	}
	remoteKey, err := base64.StdEncoding.DecodeString(req.RemotePublicKey)
	if err != nil {
		response.Error(c, errno.ErrBind)
		return nil, false
	}
	return &pigeon.PairingRequest{
		Identifier:      req.Identifier,
		Service:         req.Service,
		RemotePublicKey: remoteKey,
		ReturnToURL:     req.ReturnToURL,
	}, true
}

// Accept 接受配对请求
// @Summary 接受配对
// @Description 派生配对密钥、注册后端并与远端完成 LINK 握手
// @Tags Pairing
// @Accept json
// @Produce json
// @Param request body request.PairingActionRequest true "Pairing Request"
// @Success 200 {object} response.Response
// @Router /api/v1/pair/accept [post]
func (h *PairHandler) Accept(c *gin.Context) {
	req, bound := decodePairingRequest(c)
	if !bound {
		return
	}
	if err := h.exchange.AcceptPairingRequest(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	pubKey := h.exchange.PairingPublicKey(req.Identifier)
	response.Success(c, gin.H{
		"pairing_public_key": base64.StdEncoding.EncodeToString(pubKey),
		"return_to_url":      req.ReturnToURL,
	})
}

// Reject 拒绝配对请求
// @Summary 拒绝配对
// @Tags Pairing
// @Accept json
// @Produce json
// @Param request body request.PairingActionRequest true "Pairing Request"
// @Success 200 {object} response.Response
// @Router /api/v1/pair/reject [post]
func (h *PairHandler) Reject(c *gin.Context) {
	req, bound := decodePairingRequest(c)
	if !bound {
		return
	}
	if err := h.exchange.RejectPairingRequest(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Ping 向已配对的远端发送 PING
// @Summary 发送 PING
// @Tags Pairing
// @Accept json
// @Produce json
// @Param request body request.PingRequest true "Ping Request"
// @Success 200 {object} response.Response
// @Router /api/v1/pair/ping [post]
func (h *PairHandler) Ping(c *gin.Context) {
	var req request.PingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	remoteKey, err := base64.StdEncoding.DecodeString(req.RemotePublicKey)
	if err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	if err := h.exchange.SendPing(c.Request.Context(), remoteKey, req.Text); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// FetchInbox 立即拉取并处理一轮收件箱
// @Summary 拉取收件箱
// @Tags Pairing
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/pair/inbox/fetch [post]
func (h *PairHandler) FetchInbox(c *gin.Context) {
	if err := h.exchange.FetchInbox(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
