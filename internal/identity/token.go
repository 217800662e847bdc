package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	DefaultTokenLength = 36
)

// GenerateToken генерирует случайный base62 токен
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		length = DefaultTokenLength
	}

	limit := big.NewInt(int64(len(base62Alphabet)))
	buf := make([]byte, length)

	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}

		buf[i] = base62Alphabet[n.Int64()]
	}

	return string(buf), nil
}
