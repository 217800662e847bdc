package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"robogarage/internal/identity"
	"robogarage/internal/models"
)

const (
	argonTime    = 2
	argonMemory  = 19 * 1024
	argonThreads = 1
	keyLen       = 32
	nonceLen     = 24
)

var ErrDecrypt = errors.New("failed to decrypt private key")

// Derive выводит пару ключей робота из токена.
// Один и тот же токен всегда дает один и тот же публичный ключ.
func Derive(token string) (models.KeyPair, error) {
	if token == "" {
		return models.KeyPair{}, errors.New("empty token")
	}

	priv := ed25519.NewKeyFromSeed(stretch(token, "sign"))
	pub := priv.Public().(ed25519.PublicKey)

	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return models.KeyPair{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	var boxKey [keyLen]byte
	copy(boxKey[:], stretch(token, "box"))

	sealed := secretbox.Seal(nonce[:], priv, &nonce, &boxKey)

	return models.KeyPair{
		PubKey:     base64.StdEncoding.EncodeToString(pub),
		EncPrivKey: base64.StdEncoding.EncodeToString(sealed),
	}, nil
}

// Decrypt расшифровывает приватный ключ робота токеном
func Decrypt(token, encPrivKey string) (ed25519.PrivateKey, error) {
	sealed, err := base64.StdEncoding.DecodeString(encPrivKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	if len(sealed) < nonceLen+secretbox.Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	var nonce [nonceLen]byte
	copy(nonce[:], sealed[:nonceLen])

	var boxKey [keyLen]byte
	copy(boxKey[:], stretch(token, "box"))

	priv, ok := secretbox.Open(nil, sealed[nonceLen:], &nonce, &boxKey)
	if !ok {
		return nil, ErrDecrypt
	}

	return ed25519.PrivateKey(priv), nil
}

func stretch(token, purpose string) []byte {
	salt := []byte(purpose + ":" + identity.HashID(token))
	return argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, keyLen)
}
