package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash возвращает hex SHA-256 строки
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashID - стабильный идентификатор слота: двойной SHA-256 токена.
// Используется как seed для никнейма и аватара.
func HashID(token string) string {
	return Hash(Hash(token))
}

// AuthDigest - значение для заголовка аутентификации робота (base91 от SHA-256 токена)
func AuthDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return EncodeBase91(sum[:])
}
