package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"payments-core/internal/sender"
	"payments-core/pkg/amount"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "发起一笔转账",
	Long:  `校验、构建、签名并广播一笔转账。金额使用最小单位 (satoshi / wei)。`,
	Run: func(cmd *cobra.Command, args []string) {
		code, _ := cmd.Flags().GetString("currency")
		address, _ := cmd.Flags().GetString("address")
		rawAmount, _ := cmd.Flags().GetString("amount")
		comment, _ := cmd.Flags().GetString("comment")
		pin, _ := cmd.Flags().GetString("pin")
		contract, _ := cmd.Flags().GetString("contract")
		decimals, _ := cmd.Flags().GetInt("decimals")

		var currency amount.Currency
		switch strings.ToUpper(code) {
		case amount.BTC.Code:
			currency = amount.BTC
		case amount.BCH.Code:
			currency = amount.BCH
		case amount.ETH.Code:
			currency = amount.ETH
		default:
			if contract == "" {
				fmt.Printf("❌ 未知币种 %s (代币请指定 --contract)\n", code)
				os.Exit(1)
			}
			currency = amount.NewToken(code, contract, decimals)
		}

		amt, err := amount.Parse(rawAmount, currency)
		if err != nil {
			fmt.Printf("❌ 非法金额: %v\n", err)
			os.Exit(1)
		}

		s, err := buildStack()
		if err != nil {
			fmt.Printf("初始化失败: %v\n", err)
			os.Exit(1)
		}
		defer s.kv.Close()

		snd, err := s.senders.SenderFor(currency)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}

		verdict := snd.CreateTransaction(address, amt, comment)
		if !verdict.OK() {
			fmt.Printf("❌ 校验未通过: %s\n", verdict.Code)
			os.Exit(1)
		}

		fmt.Printf("正在签名并广播 %s %s -> %s ...\n", rawAmount, currency.Code, address)
		pinVerifier := func(context.Context) (string, error) { return pin, nil }
		result := snd.Send(context.Background(), false, pinVerifier)
		if result.Status != sender.SendSuccess {
			fmt.Printf("❌ 发送失败: %s\n", result.Message)
			os.Exit(1)
		}

		fmt.Println("✅ 广播成功!")
		fmt.Printf("Tx Hash: %s\n", result.TxHash)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringP("currency", "c", "BTC", "币种代码 (BTC / BCH / ETH / 代币)")
	sendCmd.Flags().StringP("address", "a", "", "收款地址")
	sendCmd.Flags().String("amount", "", "金额 (最小单位十进制)")
	sendCmd.Flags().String("comment", "", "备注 (仅本地留存)")
	sendCmd.Flags().String("pin", "", "签名授权 PIN")
	sendCmd.Flags().String("contract", "", "ERC-20 合约地址")
	sendCmd.Flags().Int("decimals", 18, "ERC-20 小数位")
	sendCmd.MarkFlagRequired("address")
	sendCmd.MarkFlagRequired("amount")
	sendCmd.MarkFlagRequired("pin")
}
