package sender

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"payments-core/pkg/amount"
)

var ErrNotSigned = errors.New("sender: transaction not signed")

// BitcoinTransaction UTXO 家族的待签名交易。
// Inputs 与 MsgTx.TxIn 顺序一一对应，签名器按序填 SignatureScript。
type BitcoinTransaction struct {
	MsgTx    *wire.MsgTx
	Inputs   []UTXO
	FeePaid  uint64
	currency amount.Currency
	signed   bool
}

func (t *BitcoinTransaction) Currency() amount.Currency { return t.currency }

// MarkSigned 由签名器在全部输入填好脚本后调用
func (t *BitcoinTransaction) MarkSigned() { t.signed = true }

func (t *BitcoinTransaction) Serialize() ([]byte, error) {
	if !t.signed {
		return nil, ErrNotSigned
	}
	var buf bytes.Buffer
	if err := t.MsgTx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *BitcoinTransaction) TxHash() string {
	return t.MsgTx.TxHash().String()
}

// EthTransaction 账户家族的待签名交易。
// 代币转账时 Value 为零、Data 携带 transfer 调用。
type EthTransaction struct {
	To       common.Address
	Value    *uint256.Int
	Data     []byte
	Nonce    uint64
	GasLimit uint64
	GasPrice *uint256.Int
	ChainID  *big.Int

	Signed   *types.Transaction
	currency amount.Currency
}

func (t *EthTransaction) Currency() amount.Currency { return t.currency }

// UnsignedTx 供签名器构造待签对象
func (t *EthTransaction) UnsignedTx() *types.Transaction {
	to := t.To
	return types.NewTx(&types.LegacyTx{
		Nonce:    t.Nonce,
		GasPrice: t.GasPrice.ToBig(),
		Gas:      t.GasLimit,
		To:       &to,
		Value:    t.Value.ToBig(),
		Data:     t.Data,
	})
}

func (t *EthTransaction) Serialize() ([]byte, error) {
	if t.Signed == nil {
		return nil, ErrNotSigned
	}
	return t.Signed.MarshalBinary()
}

func (t *EthTransaction) TxHash() string {
	if t.Signed == nil {
		return ""
	}
	return t.Signed.Hash().Hex()
}
