package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"payments-core/internal/handler/request"
	"payments-core/internal/handler/response"
	"payments-core/internal/sender"
	"payments-core/internal/service"
	"payments-core/pkg/amount"
	"payments-core/pkg/errno"
)

type SendHandler struct {
	senders  *service.SenderService
	metadata *service.MetadataService
}

func NewSendHandler(senders *service.SenderService, metadata *service.MetadataService) *SendHandler {
	return &SendHandler{senders: senders, metadata: metadata}
}

// resolveCurrency 把请求里的币种代码解析成描述符。
// 内置之外的代码按 ERC-20 处理，需要带上合约参数。
func resolveCurrency(code, contract string, decimals int) (amount.Currency, error) {
	switch strings.ToUpper(code) {
	case amount.BTC.Code:
		return amount.BTC, nil
	case amount.BCH.Code:
		return amount.BCH, nil
	case amount.ETH.Code:
		return amount.ETH, nil
	default:
		if contract == "" {
			return amount.Currency{}, errno.ErrCurrencyUnknown
		}
		if decimals <= 0 {
			decimals = 18
		}
		return amount.NewToken(code, contract, decimals), nil
	}
}

// CreateSend 发起一笔转账
// @Summary 发起转账
// @Description 校验、构建、签名并广播一笔转账
// @Tags Send
// @Accept json
// @Produce json
// @Param request body request.CreateSendRequest true "Send Request"
// @Success 200 {object} response.Response
// @Router /api/v1/send [post]
func (h *SendHandler) CreateSend(c *gin.Context) {
	var req request.CreateSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	currency, err := resolveCurrency(req.Currency, req.TokenContract, req.TokenDecimals)
	if err != nil {
		response.Error(c, err)
		return
	}
	amt, err := amount.Parse(req.Amount, currency)
	if err != nil {
		response.Error(c, errno.Errno{Code: errno.ErrValidationFailed.Code, Message: err.Error()})
		return
	}

	snd, err := h.senders.SenderFor(currency)
	if err != nil {
		response.Error(c, err)
		return
	}

	verdict := snd.CreateTransaction(req.Address, amt, req.Comment)
	if !verdict.OK() {
		response.Error(c, errno.Errno{Code: errno.ErrValidationFailed.Code, Message: verdict.Code.String()})
		return
	}

	pin := func(context.Context) (string, error) { return req.PIN, nil }
	result := snd.Send(c.Request.Context(), false, pin)
	switch result.Status {
	case sender.SendSuccess:
		response.Success(c, gin.H{"tx_hash": result.TxHash})
	case sender.SendTimeout:
		response.Error(c, errno.ErrSendTimeout)
	case sender.SendPublishFailure, sender.SendInsufficientGas:
		response.Error(c, errno.Errno{Code: errno.ErrPublishFailed.Code, Message: result.Message})
	default:
		response.Error(c, errno.Errno{Code: errno.ErrNotReady.Code, Message: result.Message})
	}
}

// EstimateFee 预估手续费
// @Summary 预估手续费
// @Tags Send
// @Accept json
// @Produce json
// @Param request body request.FeeEstimateRequest true "Fee Request"
// @Success 200 {object} response.Response
// @Router /api/v1/send/fee [post]
func (h *SendHandler) EstimateFee(c *gin.Context) {
	var req request.FeeEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	currency, err := resolveCurrency(req.Currency, "", 0)
	if err != nil {
		response.Error(c, err)
		return
	}
	amt, err := amount.Parse(req.Amount, currency)
	if err != nil {
		response.Error(c, errno.Errno{Code: errno.ErrValidationFailed.Code, Message: err.Error()})
		return
	}

	snd, err := h.senders.SenderFor(currency)
	if err != nil {
		response.Error(c, err)
		return
	}
	fee, available := snd.FeeForAmount(amt)
	if !available {
		response.Error(c, errno.Errno{Code: errno.ErrValidationFailed.Code, Message: "fee estimate unavailable"})
		return
	}
	response.Success(c, gin.H{"fee": fee.String(), "currency": fee.Currency().Code})
}

// GetTransaction 查询单笔交易元数据
// @Summary 查询交易元数据
// @Tags Send
// @Produce json
// @Param hash path string true "Transaction hash"
// @Success 200 {object} response.Response
// @Router /api/v1/send/tx/{hash} [get]
func (h *SendHandler) GetTransaction(c *gin.Context) {
	record, err := h.metadata.TxMetadataByHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		response.Error(c, errno.ErrRecordNotFound)
		return
	}
	response.Success(c, record)
}

// RecentTransactions 查询最近广播的交易
// @Summary 最近交易
// @Tags Send
// @Produce json
// @Param limit query int false "Max rows"
// @Success 200 {object} response.Response
// @Router /api/v1/send/recent [get]
func (h *SendHandler) RecentTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	records, err := h.metadata.RecentTxMetadata(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, errno.ErrDatabase)
		return
	}
	response.Success(c, records)
}
