package pigeon

import (
	"bytes"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"google.golang.org/protobuf/encoding/protowire"

	"payments-core/pkg/safe_random"
)

// EnvelopeVersion 当前信封格式版本
const EnvelopeVersion = 1

var ErrEnvelopeMalformed = errors.New("pigeon: 信封格式非法")

// Envelope 端到端加密消息的传输外壳。
// 明文字段用于路由和验签，payload 只有持有配对私钥的双方能解开。
type Envelope struct {
	Version           uint32 // 1
	Service           string // 2
	MessageType       string // 3
	SenderPublicKey   []byte // 4, 压缩 secp256k1
	ReceiverPublicKey []byte // 5
	Identifier        string // 6, 每条消息唯一
	EncryptedMessage  []byte // 7
	Nonce             []byte // 8
	Signature         []byte // 9, 对 signature 置空的序列化做 DER ECDSA
}

func (e *Envelope) marshal(withSignature bool) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Version))
	b = appendStringField(b, 2, e.Service)
	b = appendStringField(b, 3, e.MessageType)
	b = appendBytesField(b, 4, e.SenderPublicKey)
	b = appendBytesField(b, 5, e.ReceiverPublicKey)
	b = appendStringField(b, 6, e.Identifier)
	b = appendBytesField(b, 7, e.EncryptedMessage)
	b = appendBytesField(b, 8, e.Nonce)
	if withSignature {
		b = appendBytesField(b, 9, e.Signature)
	}
	return b
}

// Marshal 完整序列化 (含签名)
func (e *Envelope) Marshal() []byte { return e.marshal(true) }

// SignedData 参与签名的字节: signature 字段置空后的序列化
func (e *Envelope) SignedData() []byte { return e.marshal(false) }

func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	e := &Envelope{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, ErrEnvelopeMalformed
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, ErrEnvelopeMalformed
			}
			e.Version = uint32(v)
			data = data[n:]
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, ErrEnvelopeMalformed
			}
			switch num {
			case 2:
				e.Service = string(v)
			case 3:
				e.MessageType = string(v)
			case 4:
				e.SenderPublicKey = append([]byte(nil), v...)
			case 5:
				e.ReceiverPublicKey = append([]byte(nil), v...)
			case 6:
				e.Identifier = string(v)
			case 7:
				e.EncryptedMessage = append([]byte(nil), v...)
			case 8:
				e.Nonce = append([]byte(nil), v...)
			case 9:
				e.Signature = append([]byte(nil), v...)
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, ErrEnvelopeMalformed
			}
			data = data[n:]
		}
	}
	if e.MessageType == "" || len(e.SenderPublicKey) == 0 {
		return nil, ErrEnvelopeMalformed
	}
	return e, nil
}

// NewEnvelope 加密 payload 并构造签好名的信封
func NewEnvelope(priv *btcec.PrivateKey, receiverPub *btcec.PublicKey, service, messageType string, payload []byte) (*Envelope, error) {
	nonce, ciphertext, err := Encrypt(priv, receiverPub, payload)
	if err != nil {
		return nil, err
	}
	e := &Envelope{
		Version:           EnvelopeVersion,
		Service:           service,
		MessageType:       messageType,
		SenderPublicKey:   priv.PubKey().SerializeCompressed(),
		ReceiverPublicKey: receiverPub.SerializeCompressed(),
		Identifier:        safe_random.NewUUID(),
		EncryptedMessage:  ciphertext,
		Nonce:             nonce,
	}
	e.Signature = Sign(priv, e.SignedData())
	return e, nil
}

// ReplyEnvelope 对收到的信封构造回信: 收发方交换，标识符沿用请求的，
// 方便对端做请求-响应关联。
func ReplyEnvelope(priv *btcec.PrivateKey, inReplyTo *Envelope, messageType string, payload []byte) (*Envelope, error) {
	senderPub, err := btcec.ParsePubKey(inReplyTo.SenderPublicKey)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext, err := Encrypt(priv, senderPub, payload)
	if err != nil {
		return nil, err
	}
	e := &Envelope{
		Version:           EnvelopeVersion,
		Service:           inReplyTo.Service,
		MessageType:       messageType,
		SenderPublicKey:   priv.PubKey().SerializeCompressed(),
		ReceiverPublicKey: inReplyTo.SenderPublicKey,
		Identifier:        inReplyTo.Identifier,
		EncryptedMessage:  ciphertext,
		Nonce:             nonce,
	}
	e.Signature = Sign(priv, e.SignedData())
	return e, nil
}

// Verify 信封必须寄给本地配对公钥，且签名在置空 signature 的
// 序列化上由发件人公钥验证通过。
func (e *Envelope) Verify(localPairingPub *btcec.PublicKey) bool {
	if !bytes.Equal(e.ReceiverPublicKey, localPairingPub.SerializeCompressed()) {
		return false
	}
	senderPub, err := btcec.ParsePubKey(e.SenderPublicKey)
	if err != nil {
		return false
	}
	return VerifySignature(senderPub, e.SignedData(), e.Signature)
}

// Decrypt 解出信封内的明文消息
func (e *Envelope) Decrypt(priv *btcec.PrivateKey) ([]byte, error) {
	senderPub, err := btcec.ParsePubKey(e.SenderPublicKey)
	if err != nil {
		return nil, err
	}
	return Decrypt(priv, senderPub, e.Nonce, e.EncryptedMessage)
}
