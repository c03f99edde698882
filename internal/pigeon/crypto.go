package pigeon

import (
	"crypto/rand"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/chacha20poly1305"

	"payments-core/pkg/crypto_util"
)

var (
	ErrDecryptFailed = errors.New("pigeon: 解密失败")
	ErrBadSignature  = errors.New("pigeon: 签名校验失败")
)

// DerivePairingKey 从认证根密钥和配对标识符派生确定性配对密钥:
// priv = SHA256(authPriv ‖ SHA256(identifier))。
// 单向: 泄露配对密钥不暴露认证根密钥；同一标识符永远得到同一密钥。
func DerivePairingKey(authKey *btcec.PrivateKey, identifier string) *btcec.PrivateKey {
	idHash := crypto_util.SHA256([]byte(identifier))
	seed := crypto_util.SHA256(append(authKey.Serialize(), idHash...))
	priv, _ := btcec.PrivKeyFromBytes(seed)
	return priv
}

// sharedKey ECDH 共享密钥再过一次 SHA-256，得到对称密钥
func sharedKey(priv *btcec.PrivateKey, pub *btcec.PublicKey) []byte {
	secret := btcec.GenerateSharedSecret(priv, pub)
	return crypto_util.SHA256(secret)
}

// Encrypt 用 ECDH(priv, receiverPub) 派生的密钥做 ChaCha20-Poly1305
// 加密。返回随机 nonce 和密文。
func Encrypt(priv *btcec.PrivateKey, receiverPub *btcec.PublicKey, plaintext []byte) (nonce, ciphertext []byte, err error) {
	aead, err := chacha20poly1305.New(sharedKey(priv, receiverPub))
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return nonce, aead.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt Encrypt 的逆操作
func Decrypt(priv *btcec.PrivateKey, senderPub *btcec.PublicKey, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(sharedKey(priv, senderPub))
	if err != nil {
		return nil, err
	}
	if len(nonce) != chacha20poly1305.NonceSize {
		return nil, ErrDecryptFailed
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// Sign 对数据的 SHA-256 摘要做 DER 编码的 ECDSA 签名
func Sign(priv *btcec.PrivateKey, data []byte) []byte {
	digest := crypto_util.SHA256(data)
	return ecdsa.Sign(priv, digest).Serialize()
}

// VerifySignature 校验 DER 签名
func VerifySignature(pub *btcec.PublicKey, data, signature []byte) bool {
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(crypto_util.SHA256(data), pub)
}
