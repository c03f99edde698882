package relay

import (
	"bytes"
	"context"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"payments-core/pkg/logger"
)

// BTCRelay 通过比特币 RPC 节点广播交易
type BTCRelay struct {
	client *rpcclient.Client
	log    *zap.Logger
}

func NewBTCRelay(host, user, pass string) (*BTCRelay, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, err
	}
	return &BTCRelay{client: client, log: logger.Log.Named("btc-relay")}, nil
}

// Client 暴露底层 RPC 客户端 (钱包状态同步、费率估算复用同一连接)
func (r *BTCRelay) Client() *rpcclient.Client {
	return r.client
}

func (r *BTCRelay) Publish(_ context.Context, rawTx []byte) error {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return NewPublishError(PublishCodeBadMessage, "非法的 wire 交易: %v", err)
	}
	hash, err := r.client.SendRawTransaction(tx, false)
	if err != nil {
		r.log.Error("btc 广播失败", zap.Error(err))
		return NewPublishError(PublishCodeNotConnected, "%v", err)
	}
	r.log.Info("btc 广播成功", zap.String("hash", hash.String()))
	return nil
}
