package request

// PairingActionRequest 接受/拒绝一个配对请求 (由配对 URL 解析而来)
type PairingActionRequest struct {
	Identifier      string `json:"identifier" binding:"required"`
	Service         string `json:"service" binding:"required"`
	RemotePublicKey string `json:"remote_public_key" binding:"required"` // base64 压缩公钥
	ReturnToURL     string `json:"return_to_url"`
}

// PingRequest 向已配对的远端发送 PING
type PingRequest struct {
	RemotePublicKey string `json:"remote_public_key" binding:"required"` // base64 压缩公钥
	Text            string `json:"text"`
}
