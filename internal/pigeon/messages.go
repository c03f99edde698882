package pigeon

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

// 信封携带的消息类型
const (
	MessageTypeLink            = "LINK"
	MessageTypePing            = "PING"
	MessageTypePong            = "PONG"
	MessageTypeAccountRequest  = "ACCOUNT_REQUEST"
	MessageTypeAccountResponse = "ACCOUNT_RESPONSE"
	MessageTypePaymentRequest  = "PAYMENT_REQUEST"
	MessageTypePaymentResponse = "PAYMENT_RESPONSE"
	MessageTypeCallRequest     = "CALL_REQUEST"
	MessageTypeCallResponse    = "CALL_RESPONSE"
)

var ErrMessageMalformed = errors.New("pigeon: 消息格式非法")

// LinkStatus 配对握手结果
type LinkStatus int32

const (
	LinkStatusUnknown  LinkStatus = 0
	LinkStatusAccepted LinkStatus = 1
	LinkStatusRejected LinkStatus = 2
)

// ResponseStatus 请求处理结果
type ResponseStatus int32

const (
	ResponseStatusUnknown  ResponseStatus = 0
	ResponseStatusAccepted ResponseStatus = 1
	ResponseStatusRejected ResponseStatus = 2
)

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// walkFields 通用解码循环，按线类型把字段分发给回调
func walkFields(data []byte, onVarint func(num protowire.Number, v uint64), onBytes func(num protowire.Number, v []byte)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return ErrMessageMalformed
		}
		data = data[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return ErrMessageMalformed
			}
			if onVarint != nil {
				onVarint(num, v)
			}
			data = data[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return ErrMessageMalformed
			}
			if onBytes != nil {
				onBytes(num, v)
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return ErrMessageMalformed
			}
			data = data[n:]
		}
	}
	return nil
}

// Link 配对握手: id=1, public_key=2, status=3, error=4
type Link struct {
	ID        []byte
	PublicKey []byte
	Status    LinkStatus
	Error     string
}

func (m *Link) Marshal() []byte {
	var b []byte
	b = appendBytesField(b, 1, m.ID)
	b = appendBytesField(b, 2, m.PublicKey)
	b = appendVarintField(b, 3, uint64(m.Status))
	b = appendStringField(b, 4, m.Error)
	return b
}

func UnmarshalLink(data []byte) (*Link, error) {
	m := &Link{}
	err := walkFields(data,
		func(num protowire.Number, v uint64) {
			if num == 3 {
				m.Status = LinkStatus(v)
			}
		},
		func(num protowire.Number, v []byte) {
			switch num {
			case 1:
				m.ID = append([]byte(nil), v...)
			case 2:
				m.PublicKey = append([]byte(nil), v...)
			case 4:
				m.Error = string(v)
			}
		})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Ping ping=1
type Ping struct{ Ping string }

func (m *Ping) Marshal() []byte { return appendStringField(nil, 1, m.Ping) }

func UnmarshalPing(data []byte) (*Ping, error) {
	m := &Ping{}
	err := walkFields(data, nil, func(num protowire.Number, v []byte) {
		if num == 1 {
			m.Ping = string(v)
		}
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Pong pong=1
type Pong struct{ Pong string }

func (m *Pong) Marshal() []byte { return appendStringField(nil, 1, m.Pong) }

func UnmarshalPong(data []byte) (*Pong, error) {
	m := &Pong{}
	err := walkFields(data, nil, func(num protowire.Number, v []byte) {
		if num == 1 {
			m.Pong = string(v)
		}
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// AccountRequest scope=1
type AccountRequest struct{ Scope string }

func (m *AccountRequest) Marshal() []byte { return appendStringField(nil, 1, m.Scope) }

func UnmarshalAccountRequest(data []byte) (*AccountRequest, error) {
	m := &AccountRequest{}
	err := walkFields(data, nil, func(num protowire.Number, v []byte) {
		if num == 1 {
			m.Scope = string(v)
		}
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// AccountResponse scope=1, address=2, status=3
type AccountResponse struct {
	Scope   string
	Address string
	Status  ResponseStatus
}

func (m *AccountResponse) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Scope)
	b = appendStringField(b, 2, m.Address)
	b = appendVarintField(b, 3, uint64(m.Status))
	return b
}

func UnmarshalAccountResponse(data []byte) (*AccountResponse, error) {
	m := &AccountResponse{}
	err := walkFields(data,
		func(num protowire.Number, v uint64) {
			if num == 3 {
				m.Status = ResponseStatus(v)
			}
		},
		func(num protowire.Number, v []byte) {
			switch num {
			case 1:
				m.Scope = string(v)
			case 2:
				m.Address = string(v)
			}
		})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// PaymentRequest scope=1, address=2, amount=3, memo=4,
// transaction_size=5, transaction_fee=6。金额是十进制字符串，
// 由收款方的币种精度解释。
type PaymentRequest struct {
	Scope           string
	Address         string
	Amount          string
	Memo            string
	TransactionSize string
	TransactionFee  string
}

func (m *PaymentRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Scope)
	b = appendStringField(b, 2, m.Address)
	b = appendStringField(b, 3, m.Amount)
	b = appendStringField(b, 4, m.Memo)
	b = appendStringField(b, 5, m.TransactionSize)
	b = appendStringField(b, 6, m.TransactionFee)
	return b
}

func UnmarshalPaymentRequest(data []byte) (*PaymentRequest, error) {
	m := &PaymentRequest{}
	err := walkFields(data, nil, func(num protowire.Number, v []byte) {
		switch num {
		case 1:
			m.Scope = string(v)
		case 2:
			m.Address = string(v)
		case 3:
			m.Amount = string(v)
		case 4:
			m.Memo = string(v)
		case 5:
			m.TransactionSize = string(v)
		case 6:
			m.TransactionFee = string(v)
		}
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// PaymentResponse scope=1, status=2, transaction_id=3, error=4
type PaymentResponse struct {
	Scope         string
	Status        ResponseStatus
	TransactionID string
	Error         string
}

func (m *PaymentResponse) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Scope)
	b = appendVarintField(b, 2, uint64(m.Status))
	b = appendStringField(b, 3, m.TransactionID)
	b = appendStringField(b, 4, m.Error)
	return b
}

func UnmarshalPaymentResponse(data []byte) (*PaymentResponse, error) {
	m := &PaymentResponse{}
	err := walkFields(data,
		func(num protowire.Number, v uint64) {
			if num == 2 {
				m.Status = ResponseStatus(v)
			}
		},
		func(num protowire.Number, v []byte) {
			switch num {
			case 1:
				m.Scope = string(v)
			case 3:
				m.TransactionID = string(v)
			case 4:
				m.Error = string(v)
			}
		})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CallRequest scope=1, address=2, amount=3, memo=4, abi=5,
// transaction_size=6, transaction_fee=7。abi 携带合约调用数据。
type CallRequest struct {
	Scope           string
	Address         string
	Amount          string
	Memo            string
	Abi             string
	TransactionSize string
	TransactionFee  string
}

func (m *CallRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Scope)
	b = appendStringField(b, 2, m.Address)
	b = appendStringField(b, 3, m.Amount)
	b = appendStringField(b, 4, m.Memo)
	b = appendStringField(b, 5, m.Abi)
	b = appendStringField(b, 6, m.TransactionSize)
	b = appendStringField(b, 7, m.TransactionFee)
	return b
}

func UnmarshalCallRequest(data []byte) (*CallRequest, error) {
	m := &CallRequest{}
	err := walkFields(data, nil, func(num protowire.Number, v []byte) {
		switch num {
		case 1:
			m.Scope = string(v)
		case 2:
			m.Address = string(v)
		case 3:
			m.Amount = string(v)
		case 4:
			m.Memo = string(v)
		case 5:
			m.Abi = string(v)
		case 6:
			m.TransactionSize = string(v)
		case 7:
			m.TransactionFee = string(v)
		}
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CallResponse 与 PaymentResponse 同构
type CallResponse = PaymentResponse
