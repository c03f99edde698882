package relay

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"payments-core/pkg/logger"
)

// EthRelay 通过以太坊 RPC 节点广播交易
type EthRelay struct {
	client *ethclient.Client
	log    *zap.Logger
}

func NewEthRelay(rpcURL string) (*EthRelay, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	return &EthRelay{client: client, log: logger.Log.Named("eth-relay")}, nil
}

func (r *EthRelay) Publish(ctx context.Context, rawTx []byte) error {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return NewPublishError(PublishCodeBadMessage, "非法的 RLP 交易: %v", err)
	}
	if err := r.client.SendTransaction(ctx, tx); err != nil {
		r.log.Error("eth 广播失败", zap.String("hash", tx.Hash().Hex()), zap.Error(err))
		return NewPublishError(PublishCodeNotConnected, "%v", err)
	}
	r.log.Info("eth 广播成功", zap.String("hash", tx.Hash().Hex()))
	return nil
}
