package cmd

import (
	"math/big"

	"github.com/btcsuite/btcd/chaincfg"

	"payments-core/internal/pigeon"
	"payments-core/internal/relay"
	"payments-core/internal/sender"
	"payments-core/internal/service"
	"payments-core/internal/store"
	"payments-core/pkg/amount"
	"payments-core/pkg/config"
)

// stack CLI 进程内组装的最小服务栈。
// 配对状态落在本地 bolt 文件里，不依赖服务端的 Redis。
type stack struct {
	wallet   *service.WalletService // 收款地址展示用
	senders  *service.SenderService
	exchange *pigeon.Exchange
	kv       *store.BoltStore
}

func buildStack() (*stack, error) {
	params := &chaincfg.MainNetParams
	if config.Global.Chain.BTCNetwork != "mainnet" {
		params = &chaincfg.TestNet3Params
	}

	mnemonic, err := service.LoadMnemonic(config.Global.Wallet)
	if err != nil {
		return nil, err
	}
	wallet, err := service.NewWalletService(mnemonic, params)
	if err != nil {
		return nil, err
	}

	api := relay.NewHTTPClient(
		config.Global.Backend.BaseURL,
		config.Global.Backend.Token,
		config.Global.Backend.Timeout,
	)

	btcRelay, err := relay.NewBTCRelay(
		config.Global.Chain.BtcRpcUrl,
		config.Global.Chain.BtcRpcUser,
		config.Global.Chain.BtcRpcPass,
	)
	if err != nil {
		return nil, err
	}
	ethRelay, err := relay.NewEthRelay(config.Global.Chain.EthRpcUrl)
	if err != nil {
		return nil, err
	}

	btcState := service.NewBtcAccountState(btcRelay.Client(), params, wallet.BTCAddress(), wallet.BTCAddress())
	ethState, err := service.NewEthAccountState(config.Global.Chain.EthRpcUrl, wallet.ETHAddress())
	if err != nil {
		return nil, err
	}

	chainID := big.NewInt(config.Global.Chain.EthChainID)
	signer, err := service.NewLocalSigner(wallet, chainID, config.Global.Wallet.Password, nil)
	if err != nil {
		return nil, err
	}

	senders := service.NewSenderService(sender.Deps{
		BitcoinWallet: btcState,
		EthWallet:     ethState,
		Signer:        signer,
		Rates:         service.NewRateService("USD"),
		API:           api,
		Merchant:      sender.NewMerchantClient(),
		ChainParams:   params,
		ChainID:       chainID,
	})
	senders.RegisterRelay(amount.FamilyBitcoin, btcRelay)
	senders.RegisterRelay(amount.FamilyEthereum, ethRelay)

	authKey, err := wallet.AuthKey()
	if err != nil {
		return nil, err
	}
	kv, err := store.NewBoltStore("pigeon.db")
	if err != nil {
		return nil, err
	}

	// CLI 不自动批准结账请求，收到时拒绝并提示走服务端
	checkout := service.NewCheckoutService(nil, api, nil, senders, nil, false)
	exchange := pigeon.NewExchange(api, kv, authKey, wallet, checkout, config.Global.Pigeon)

	return &stack{
		wallet:   wallet,
		senders:  senders,
		exchange: exchange,
		kv:       kv,
	}, nil
}
