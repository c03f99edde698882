package crypto_util

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// SHA256 计算输入的 SHA256 哈希值。
func SHA256(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// CalculateSHA256 计算输入的 SHA256 哈希值并返回 Hex 字符串。
func CalculateSHA256(data []byte) string {
	return hex.EncodeToString(SHA256(data))
}

// Keccak256 计算输入的 Keccak256 哈希值。
// 这是以太坊使用的哈希算法。
func Keccak256(data []byte) []byte {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(data)
	return hash.Sum(nil)
}

// Blake3 计算输入的 Blake3 哈希值。
// Blake3 是一种现代、高性能的加密哈希函数，这里用于派生本地钱包 ID 等非共识用途。
func Blake3(data []byte) []byte {
	hash := blake3.Sum256(data)
	return hash[:]
}

// CalculateBlake3 计算输入的 Blake3 哈希值并返回 Hex 字符串。
func CalculateBlake3(data []byte) string {
	return hex.EncodeToString(Blake3(data))
}
