package bip32

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidSeed = errors.New("无效的种子")
	ErrInvalidPath = errors.New("无效的派生路径")
)

// 本仓库内置签名器使用的派生路径
const (
	PathBTCAccount = "m/44'/0'/0'/0/0"
	PathETHAccount = "m/44'/60'/0'/0/0"
	// PathAuthKey 钱包长期认证密钥 (配对密钥派生的本地输入)
	PathAuthKey = "m/1017'/0'/0'"
)

// Key 包装一个 BIP-32 扩展密钥
type Key struct {
	key     *hdkeychain.ExtendedKey
	network *chaincfg.Params
}

// String 返回 Base58 编码 (xprv... / xpub...)
func (k *Key) String() string {
	return k.key.String()
}

// ECPubKey 返回底层 EC 公钥
func (k *Key) ECPubKey() (*btcec.PublicKey, error) {
	return k.key.ECPubKey()
}

// ECPrivKey 返回底层 EC 私钥 (用于签名)
func (k *Key) ECPrivKey() (*btcec.PrivateKey, error) {
	return k.key.ECPrivKey()
}

// ECDSAPrivKey 返回 go-ethereum 签名使用的 *ecdsa.PrivateKey 形式
func (k *Key) ECDSAPrivKey() (*ecdsa.PrivateKey, error) {
	priv, err := k.key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	key := priv.ToECDSA()
	// go-ethereum 的 crypto.Sign 要求 Curve 为其自身的 S256 实例
	key.Curve = ethcrypto.S256()
	return key, nil
}

func (k *Key) IsPrivate() bool {
	return k.key.IsPrivate()
}

// Address 返回 P2PKH 地址 (BTC 格式)
func (k *Key) Address() string {
	addr, err := k.key.Address(k.network)
	if err != nil {
		return ""
	}
	return addr.EncodeAddress()
}

// Neuter 返回对应的扩展公钥
func (k *Key) Neuter() (*Key, error) {
	neutered, err := k.key.Neuter()
	if err != nil {
		return nil, fmt.Errorf("转换公钥失败: %v", err)
	}
	return &Key{key: neutered, network: k.network}, nil
}

// Wallet 分层确定性钱包
type Wallet struct {
	masterKey *Key
	network   *chaincfg.Params
}

// NewMasterKeyFromSeed 使用 BIP-39 种子生成主密钥。
// network 为 nil 时默认 MainNet。
func NewMasterKeyFromSeed(seed []byte, network *chaincfg.Params) (*Wallet, error) {
	if len(seed) < 16 || len(seed) > 64 {
		return nil, ErrInvalidSeed
	}
	if network == nil {
		network = &chaincfg.MainNetParams
	}

	masterKey, err := hdkeychain.NewMaster(seed, network)
	if err != nil {
		return nil, fmt.Errorf("生成主密钥失败: %v", err)
	}

	return &Wallet{
		masterKey: &Key{key: masterKey, network: network},
		network:   network,
	}, nil
}

func (w *Wallet) MasterKey() *Key {
	return w.masterKey
}

// DerivePath 解析路径并派生密钥。
// 支持格式: m/44'/0'/0'/0/0 或 m/44h/0h/0h/0/0
func (w *Wallet) DerivePath(path string) (*Key, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return w.masterKey, nil
	}
	if strings.HasPrefix(path, "m/") {
		path = path[2:]
	}

	current := w.masterKey.key
	for _, segment := range strings.Split(path, "/") {
		hardened := false
		if strings.HasSuffix(segment, "'") || strings.HasSuffix(segment, "h") {
			hardened = true
			segment = segment[:len(segment)-1]
		}

		val, err := strconv.ParseUint(segment, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: 段 '%s': %v", ErrInvalidPath, segment, err)
		}
		index := uint32(val)
		if hardened {
			index += hdkeychain.HardenedKeyStart
		}

		current, err = current.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("派生子密钥失败: %v", err)
		}
	}

	return &Key{key: current, network: w.network}, nil
}
