package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"payments-core/pkg/config"
	"payments-core/pkg/logger"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "payments-cli",
	Short: "多币种支付命令行工具",
	Long: `多币种转账与安全配对的命令行入口。
支持发起 BTC/ETH/ERC-20 转账、处理配对请求以及收件箱消息交换。`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Init()
		logger.Init(config.Global.App.Env)
	},
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// 在这里可以定义全局标志 (Global Flags)
}
