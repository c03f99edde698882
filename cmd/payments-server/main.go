package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"payments-core/internal/handler"
	"payments-core/internal/model"
	"payments-core/internal/pigeon"
	"payments-core/internal/relay"
	"payments-core/internal/sender"
	"payments-core/internal/server"
	"payments-core/internal/service"
	"payments-core/internal/service/mq"
	"payments-core/internal/store"
	"payments-core/pkg/amount"
	"payments-core/pkg/config"
	"payments-core/pkg/database"
	"payments-core/pkg/logger"

	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"

	_ "payments-core/docs/swagger"
)

// @title Payments Core API
// @version 1.0
// @description Multi-currency payment sender and secure pairing service

// @host localhost:8080
// @BasePath /
func main() {
	// 0. 初始化 Config
	config.Init()

	// 1. 初始化 Logger
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	// 2. 构造 DSN 并连接数据库
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=Asia/Shanghai",
		config.Global.DB.Host,
		config.Global.DB.User,
		config.Global.DB.Password,
		config.Global.DB.Name,
		config.Global.DB.Port,
	)
	db, err := database.ConnectPostgres(dsn)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 3. 连接 Redis
	rdb, err := database.ConnectRedis(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}

	// 4. 执行数据库迁移 (Auto Migrate) - 仅开发环境
	if config.Global.App.Env == "development" {
		logger.Info("开发环境: 尝试自动迁移 Schema (GORM AutoMigrate)...")
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			logger.Fatal("数据库自动迁移失败", zap.Error(err))
		}
		logger.Info("数据库自动迁移完成 (Dev Mode)")
	} else {
		logger.Info("生产环境: 跳过 AutoMigrate，请使用 migrate 工具管理 Schema")
	}

	// 5. 从助记词派生本地钱包密钥
	params := &chaincfg.MainNetParams
	if config.Global.Chain.BTCNetwork != "mainnet" {
		params = &chaincfg.TestNet3Params
	}
	mnemonic, err := service.LoadMnemonic(config.Global.Wallet)
	if err != nil {
		logger.Fatal("钱包密钥材料加载失败", zap.Error(err))
	}
	wallet, err := service.NewWalletService(mnemonic, params)
	if err != nil {
		logger.Fatal("钱包初始化失败", zap.Error(err))
	}
	logger.Info("钱包密钥加载成功 (内存中)",
		zap.String("btc", wallet.BTCAddress()),
		zap.String("eth", wallet.ETHAddress()))

	// 6. 后端 API 客户端 (消息中转 / 估气 / 代币目录)
	api := relay.NewHTTPClient(
		config.Global.Backend.BaseURL,
		config.Global.Backend.Token,
		config.Global.Backend.Timeout,
	)

	// 7. 广播通道与链上状态
	btcRelay, err := relay.NewBTCRelay(
		config.Global.Chain.BtcRpcUrl,
		config.Global.Chain.BtcRpcUser,
		config.Global.Chain.BtcRpcPass,
	)
	if err != nil {
		logger.Fatal("BTC RPC 连接失败", zap.Error(err))
	}
	ethRelay, err := relay.NewEthRelay(config.Global.Chain.EthRpcUrl)
	if err != nil {
		logger.Fatal("ETH RPC 连接失败", zap.Error(err))
	}

	btcState := service.NewBtcAccountState(btcRelay.Client(), params, wallet.BTCAddress(), wallet.BTCAddress())
	ethState, err := service.NewEthAccountState(config.Global.Chain.EthRpcUrl, wallet.ETHAddress())
	if err != nil {
		logger.Fatal("ETH 状态服务初始化失败", zap.Error(err))
	}

	// 8. 初始化消息队列
	var producer mq.Producer
	if config.Global.Redis.MQType == "kafka" {
		logger.Info("使用 Kafka 作为消息队列...")
		producer = mq.NewKafkaProducer(config.Global.Kafka.Brokers, "payments_events")
	} else {
		logger.Info("使用 Redis Streams 作为消息队列...")
		producer = mq.NewRedisProducer(rdb)
	}

	// 9. 签名与发送编排
	chainID := big.NewInt(config.Global.Chain.EthChainID)
	signer, err := service.NewLocalSigner(wallet, chainID, config.Global.Wallet.Password, nil)
	if err != nil {
		logger.Fatal("签名器初始化失败", zap.Error(err))
	}
	rates := service.NewRateService("USD")
	metadata := service.NewMetadataService(db, producer)

	senders := service.NewSenderService(sender.Deps{
		BitcoinWallet: btcState,
		EthWallet:     ethState,
		Signer:        signer,
		Rates:         rates,
		API:           api,
		Metadata:      metadata,
		Merchant:      sender.NewMerchantClient(),
		ChainParams:   params,
		ChainID:       chainID,
	})
	senders.RegisterRelay(amount.FamilyBitcoin, btcRelay)
	senders.RegisterRelay(amount.FamilyEthereum, ethRelay)

	// 10. 配对协议与结账处理
	authKey, err := wallet.AuthKey()
	if err != nil {
		logger.Fatal("认证根密钥派生失败", zap.Error(err))
	}
	kv := store.NewRedisStore(rdb, "pigeon")
	pin := func(context.Context) (string, error) { return config.Global.Wallet.Password, nil }
	checkout := service.NewCheckoutService(db, api, producer, senders, pin, config.Global.App.AutoApprove)
	exchange := pigeon.NewExchange(api, kv, authKey, wallet, checkout, config.Global.Pigeon)
	exchange.UseEventPublisher(producer)
	exchange.StartPolling()

	// 11. 后台刷新: 链上状态 + 费率
	stateCtx, stateCancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			if err := btcState.Refresh(stateCtx); err != nil {
				logger.Warn("BTC 状态刷新失败", zap.Error(err))
			}
			if err := ethState.Refresh(stateCtx, nil); err != nil {
				logger.Warn("ETH 状态刷新失败", zap.Error(err))
			}
			select {
			case <-stateCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	feeService := service.NewFeeService(btcRelay.Client(), ethState.Client(), senders, amount.FeeLevelRegular)
	go feeService.Start(stateCtx, time.Minute)

	// 行情推送消费: 更新法币汇率快照
	rateConsumer := mq.NewRedisConsumer(rdb, "payments_rates_group", "payments-server")
	rateFeed := service.NewRateFeedService(rateConsumer, rates)
	go func() {
		if err := rateFeed.Start(stateCtx); err != nil {
			logger.Warn("汇率消费退出", zap.Error(err))
		}
	}()

	// 12. HTTP Router
	sendHandler := handler.NewSendHandler(senders, metadata)
	pairHandler := handler.NewPairHandler(exchange)
	r := server.NewHTTPRouter(sendHandler, pairHandler)

	// 13. 启动应用并阻塞
	app := server.New(server.Config{HttpPort: config.Global.App.HttpPort}, r)
	app.OnShutdown(exchange.StopPolling)
	app.OnShutdown(stateCancel)
	app.Run()

	// 14. 退出后资源清理
	logger.Info("正在关闭数据库连接...")
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	rdb.Close()
	logger.Info("系统已退出")
}
