package utils

import (
	"crypto/rand"
	"math/big"
)

func GenerateRandomString(length int) string {
	const charset = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	result := make([]byte, length)
	for i := range result {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		result[i] = charset[n.Int64()]
	}
	return string(result)
}

// MaskBin keeps the first digits of a BIN for logs.
func MaskBin(bin string) string {
	if len(bin) <= 4 {
		return "****"
	}
	return bin[:4] + "**"
}
