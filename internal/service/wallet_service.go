package service

import (
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"payments-core/pkg/bip32"
	"payments-core/pkg/bip39"
	"payments-core/pkg/config"
	"payments-core/pkg/keystore"
)

var ErrNoWalletSecret = errors.New("service: 配置中既没有助记词也没有 keystore 文件")

// LoadMnemonic 取钱包助记词: 配置明文优先 (开发环境)，否则从
// keystore 文件解密。
func LoadMnemonic(cfg config.WalletConfig) (string, error) {
	if cfg.Mnemonic != "" {
		return cfg.Mnemonic, nil
	}
	if cfg.KeystorePath == "" {
		return "", ErrNoWalletSecret
	}
	keyJSON, err := keystore.LoadFromFile(cfg.KeystorePath)
	if err != nil {
		return "", err
	}
	secret, err := keystore.DecryptSecret(keyJSON, cfg.Password)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

// SaveMnemonic 将助记词加密写入 keystore 文件
func SaveMnemonic(mnemonic string, cfg config.WalletConfig) error {
	keyJSON, err := keystore.EncryptSecret([]byte(mnemonic), cfg.Password)
	if err != nil {
		return err
	}
	return keyJSON.SaveToFile(cfg.KeystorePath)
}

// WalletService 从助记词派生本地钱包的全部密钥材料:
// BTC/ETH 账户密钥和配对用的认证根密钥。
type WalletService struct {
	btcKey  *bip32.Key
	ethKey  *bip32.Key
	authKey *bip32.Key

	btcAddress string
	ethAddress string
}

func NewWalletService(mnemonic string, network *chaincfg.Params) (*WalletService, error) {
	seed := bip39.NewMnemonicService().MnemonicToSeed(mnemonic, "")
	wallet, err := bip32.NewMasterKeyFromSeed(seed, network)
	if err != nil {
		return nil, err
	}

	btcKey, err := wallet.DerivePath(bip32.PathBTCAccount)
	if err != nil {
		return nil, err
	}
	ethKey, err := wallet.DerivePath(bip32.PathETHAccount)
	if err != nil {
		return nil, err
	}
	authKey, err := wallet.DerivePath(bip32.PathAuthKey)
	if err != nil {
		return nil, err
	}

	ethPriv, err := ethKey.ECDSAPrivKey()
	if err != nil {
		return nil, err
	}

	return &WalletService{
		btcKey:     btcKey,
		ethKey:     ethKey,
		authKey:    authKey,
		btcAddress: btcKey.Address(),
		ethAddress: ethcrypto.PubkeyToAddress(ethPriv.PublicKey).Hex(),
	}, nil
}

// AuthKey 配对密钥派生的根。泄露配对密钥不反推这把。
func (w *WalletService) AuthKey() (*btcec.PrivateKey, error) {
	return w.authKey.ECPrivKey()
}

func (w *WalletService) BTCKey() *bip32.Key { return w.btcKey }
func (w *WalletService) ETHKey() *bip32.Key { return w.ethKey }

func (w *WalletService) BTCAddress() string { return w.btcAddress }
func (w *WalletService) ETHAddress() string { return w.ethAddress }

// AddressForScope 按币种 scope 返回收款地址 (ACCOUNT_REQUEST 数据源)。
// 以太坊账户地址同时服务 ETH 和全部 ERC-20 scope。
func (w *WalletService) AddressForScope(scope string) (string, bool) {
	switch strings.ToLower(scope) {
	case "btc", "bch":
		return w.btcAddress, true
	case "":
		return "", false
	default:
		return w.ethAddress, true
	}
}
