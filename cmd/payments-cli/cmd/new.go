package cmd

import (
	"encoding/base64"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/cobra"

	"payments-core/internal/service"
	"payments-core/pkg/bip39"
	"payments-core/pkg/config"
)

// newCmd 代表 new 命令
var newCmd = &cobra.Command{
	Use:   "new",
	Short: "创建一个新的钱包",
	Long:  `生成一个新的随机 BIP-39 助记词，并显示派生的收款地址和配对认证公钥。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("正在生成新钱包...")
		fmt.Println("---------------------------------------------------")

		// 1. 生成助记词
		mnemonic, err := bip39.NewMnemonicService().GenerateMnemonic(256) // 24 words
		if err != nil {
			fmt.Printf("生成助记词失败: %v\n", err)
			return
		}
		fmt.Printf("助记词 (Mnemonic): \n%s\n", mnemonic)
		fmt.Println("---------------------------------------------------")

		// 2. 派生钱包密钥
		wallet, err := service.NewWalletService(mnemonic, &chaincfg.MainNetParams)
		if err != nil {
			fmt.Printf("派生钱包失败: %v\n", err)
			return
		}
		fmt.Printf("Bitcoin Address:  %s\n", wallet.BTCAddress())
		fmt.Printf("Ethereum Address: %s\n", wallet.ETHAddress())

		// 3. 配对认证公钥
		authKey, err := wallet.AuthKey()
		if err != nil {
			fmt.Printf("派生认证密钥失败: %v\n", err)
			return
		}
		authPub := authKey.PubKey().SerializeCompressed()
		fmt.Printf("Auth Public Key:  %s\n", base64.StdEncoding.EncodeToString(authPub))

		// 4. 可选: 加密落盘
		savePath, _ := cmd.Flags().GetString("save")
		if savePath != "" {
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				fmt.Println("❌ --save 需要同时指定 --password")
				return
			}
			cfg := config.WalletConfig{KeystorePath: savePath, Password: password}
			if err := service.SaveMnemonic(mnemonic, cfg); err != nil {
				fmt.Printf("❌ keystore 写入失败: %v\n", err)
				return
			}
			fmt.Printf("Keystore 已写入: %s\n", savePath)
		}

		fmt.Println("---------------------------------------------------")
		fmt.Println("请妥善保管您的助记词！任何拥有助记词的人都可以控制该钱包的所有资产。")
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().String("save", "", "将助记词加密写入 keystore 文件")
	newCmd.Flags().String("password", "", "keystore 加密密码")
}
