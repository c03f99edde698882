package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"payments-core/internal/pigeon"
)

// parsePairingLink 解析配对深链: 查询参数携带 uuid、publicKey、
// service 和可选的 returnTo。publicKey 是 base64url 编码的压缩公钥。
func parsePairingLink(link string) (*pigeon.PairingRequest, error) {
	parsed, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("非法的配对链接: %w", err)
	}
	query := parsed.Query()

	identifier := query.Get("uuid")
	service := query.Get("service")
	rawKey := query.Get("publicKey")
	if identifier == "" || service == "" || rawKey == "" {
		return nil, fmt.Errorf("配对链接缺少 uuid/service/publicKey 参数")
	}

	remoteKey, err := base64.RawURLEncoding.DecodeString(rawKey)
	if err != nil {
		remoteKey, err = base64.StdEncoding.DecodeString(rawKey)
	}
	if err != nil {
		return nil, fmt.Errorf("publicKey 不是合法的 base64: %w", err)
	}

	return &pigeon.PairingRequest{
		Identifier:      identifier,
		Service:         service,
		RemotePublicKey: remoteKey,
		ReturnToURL:     query.Get("returnTo"),
	}, nil
}

var pairCmd = &cobra.Command{
	Use:   "pair <pairing-url>",
	Short: "处理一个配对请求",
	Long:  `解析配对深链并与远端完成 LINK 握手。默认接受，--reject 拒绝。`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reject, _ := cmd.Flags().GetBool("reject")

		req, err := parsePairingLink(args[0])
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}

		s, err := buildStack()
		if err != nil {
			fmt.Printf("初始化失败: %v\n", err)
			os.Exit(1)
		}
		defer s.kv.Close()

		ctx := context.Background()
		if reject {
			if err := s.exchange.RejectPairingRequest(ctx, req); err != nil {
				fmt.Printf("❌ 拒绝失败: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("已拒绝配对请求")
			return
		}

		fmt.Printf("正在与远端握手 (identifier=%s)...\n", req.Identifier)
		if err := s.exchange.AcceptPairingRequest(ctx, req); err != nil {
			fmt.Printf("❌ 配对失败: %v\n", err)
			os.Exit(1)
		}

		pubKey := s.exchange.PairingPublicKey(req.Identifier)
		fmt.Println("✅ 配对成功!")
		fmt.Printf("本地配对公钥: %s\n", base64.StdEncoding.EncodeToString(pubKey))
		if req.ReturnToURL != "" {
			fmt.Printf("返回地址: %s\n", req.ReturnToURL)
		}
	},
}

func init() {
	rootCmd.AddCommand(pairCmd)
	pairCmd.Flags().Bool("reject", false, "拒绝该配对请求")
}
