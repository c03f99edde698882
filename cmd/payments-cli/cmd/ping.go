package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "向已配对的远端发送 PING",
	Run: func(cmd *cobra.Command, args []string) {
		rawKey, _ := cmd.Flags().GetString("key")
		text, _ := cmd.Flags().GetString("text")

		remoteKey, err := base64.StdEncoding.DecodeString(rawKey)
		if err != nil {
			fmt.Printf("❌ key 不是合法的 base64: %v\n", err)
			os.Exit(1)
		}

		s, err := buildStack()
		if err != nil {
			fmt.Printf("初始化失败: %v\n", err)
			os.Exit(1)
		}
		defer s.kv.Close()

		if err := s.exchange.SendPing(context.Background(), remoteKey, text); err != nil {
			fmt.Printf("❌ 发送失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✅ PING 已投递")
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().StringP("key", "k", "", "远端配对公钥 (base64)")
	pingCmd.Flags().StringP("text", "t", "ping", "附带文本")
	pingCmd.MarkFlagRequired("key")
}
