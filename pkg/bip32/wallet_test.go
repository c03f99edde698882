package bip32

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"

	"payments-core/pkg/bip39"
)

func TestNewMasterKeyFromSeed(t *testing.T) {
	mnemonicService := bip39.NewMnemonicService()
	mnemonic, err := mnemonicService.GenerateMnemonic(128)
	assert.NoError(t, err)
	seed := mnemonicService.MnemonicToSeed(mnemonic, "")

	wallet, err := NewMasterKeyFromSeed(seed, &chaincfg.MainNetParams)
	assert.NoError(t, err)
	assert.NotNil(t, wallet.MasterKey())
	assert.True(t, wallet.MasterKey().IsPrivate())

	// 种子长度越界
	_, err = NewMasterKeyFromSeed([]byte("short"), nil)
	assert.ErrorIs(t, err, ErrInvalidSeed)
}

func TestDerivePath(t *testing.T) {
	seed, _ := hex.DecodeString("fffcf9f6da3247d8a846f4b6113e6173")
	wallet, err := NewMasterKeyFromSeed(seed, &chaincfg.MainNetParams)
	assert.NoError(t, err)

	// 同一路径两次派生必须得到相同密钥
	k1, err := wallet.DerivePath(PathBTCAccount)
	assert.NoError(t, err)
	k2, err := wallet.DerivePath(PathBTCAccount)
	assert.NoError(t, err)
	assert.Equal(t, k1.String(), k2.String())
	assert.NotEmpty(t, k1.Address())

	// Hardened 标记两种写法等价
	h1, err := wallet.DerivePath("m/0'")
	assert.NoError(t, err)
	h2, err := wallet.DerivePath("m/0h")
	assert.NoError(t, err)
	assert.Equal(t, h1.String(), h2.String())

	// Neuter 后不再是私钥
	pub, err := k1.Neuter()
	assert.NoError(t, err)
	assert.False(t, pub.IsPrivate())

	// 非法路径段
	_, err = wallet.DerivePath("m/abc")
	assert.ErrorIs(t, err, ErrInvalidPath)
}
