package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "拉取并处理一轮收件箱",
	Long:  `从消息中转后端拉取未确认的信封，解密处理后推进游标。`,
	Run: func(cmd *cobra.Command, args []string) {
		s, err := buildStack()
		if err != nil {
			fmt.Printf("初始化失败: %v\n", err)
			os.Exit(1)
		}
		defer s.kv.Close()

		fmt.Printf("本地钱包: BTC=%s ETH=%s\n", s.wallet.BTCAddress(), s.wallet.ETHAddress())
		if err := s.exchange.FetchInbox(context.Background()); err != nil {
			fmt.Printf("❌ 拉取失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✅ 收件箱处理完成")
	},
}

func init() {
	rootCmd.AddCommand(inboxCmd)
}
