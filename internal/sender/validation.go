package sender

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"

	"payments-core/pkg/amount"
)

// BitcoinValidationInput 校验所需的环境快照。
// 校验是纯函数：同样的输入永远给出同样的裁决。
type BitcoinValidationInput struct {
	Params  *chaincfg.Params
	HasRate bool
	Fees    amount.Fees
	// RequireFeeData BTC 需要已下载的费率数据，BCH 不要求
	RequireFeeData bool
}

// ValidateBitcoinPayment 按固定顺序裁决一笔 UTXO 支付：
// 地址语法 → 自付 → 汇率/费率 → dust → 余额。
func ValidateBitcoinPayment(address string, amt amount.Amount, wallet BitcoinWalletState, in BitcoinValidationInput) ValidationResult {
	decoded, err := btcutil.DecodeAddress(address, in.Params)
	if err != nil || !decoded.IsForNet(in.Params) {
		return verdict(InvalidAddress)
	}
	if wallet.IsOwnAddress(address) {
		return verdict(OwnAddress)
	}
	if !in.HasRate {
		return verdict(NoExchangeRate)
	}
	if in.RequireFeeData && !in.Fees.HasBitcoinRates() {
		return verdict(NoFeeData)
	}
	satoshis, fits := amt.Uint64()
	if !fits {
		return verdict(InsufficientFunds)
	}
	if satoshis < wallet.MinOutputAmount() {
		return tooSmall(OutputTooSmall, wallet.MinOutputAmount())
	}
	if satoshis > wallet.MaxOutputAmount() {
		return verdict(InsufficientFunds)
	}
	return ok()
}

// ValidateEthereumPayment 账户家族的裁决顺序：
// 地址语法 → 自付 → 余额 → (代币) gas 余额。
// requireGasBalance 为真时要求 ETH 余额非零，供代币转账使用。
func ValidateEthereumPayment(address string, amt amount.Amount, wallet EthWalletState, currency amount.Currency, requireGasBalance bool) ValidationResult {
	if !common.IsHexAddress(address) {
		return verdict(InvalidAddress)
	}
	if wallet.IsOwnAddress(address) {
		return verdict(OwnAddress)
	}
	balance, loaded := wallet.Balance(currency.Code)
	if !loaded || amt.Cmp(balance) > 0 {
		return verdict(InsufficientFunds)
	}
	if requireGasBalance {
		ethBalance, loaded := wallet.Balance(amount.ETH.Code)
		if !loaded || ethBalance.IsZero() {
			return verdict(InsufficientGasBalance)
		}
	}
	return ok()
}

// ValidateProtocolRequest 支付协议请求的裁决。配对场景下调用方可以
// 豁免 used-address 和证书裁决 (二次确认由上层 UI 负责)。
func ValidateProtocolRequest(req *ProtocolRequest, wallet BitcoinWalletState, ignoreUsedAddress, ignoreIdentityNotCertified bool) ValidationResult {
	if len(req.Outputs) == 0 {
		return withReason(InvalidRequest, "no outputs")
	}
	if !req.IsValid() {
		return withReason(InvalidRequest, "request expired")
	}
	firstOutput := req.Outputs[0]
	if wallet.IsOwnAddress(firstOutput.Address) {
		return verdict(OwnAddress)
	}
	if !ignoreUsedAddress && wallet.AddressIsUsed(firstOutput.Address) {
		return verdict(UsedAddress)
	}
	if !ignoreIdentityNotCertified && req.CertError != "" && req.CommonName != "" {
		return withReason(IdentityNotCertified, req.CertError)
	}
	for _, out := range req.Outputs {
		if out.Amount > 0 && out.Amount < wallet.MinOutputAmount() {
			return tooSmall(PaymentTooSmall, wallet.MinOutputAmount())
		}
	}
	return ok()
}
