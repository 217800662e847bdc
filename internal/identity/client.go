package identity

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// AvatarSize - вариант размера аватара
type AvatarSize string

const (
	AvatarSmall AvatarSize = "small"
	AvatarLarge AvatarSize = "large"
)

// Pixels возвращает сторону аватара в пикселях
func (s AvatarSize) Pixels() int {
	if s == AvatarLarge {
		return 256
	}

	return 80
}

// Client генерирует никнеймы и аватары роботов и кэширует их
type Client struct {
	avatarDir string
	logger    *slog.Logger

	nicknames map[string]string
	avatars   map[string][]byte
	mu        sync.RWMutex
}

// NewClient создает новый клиент. Пустой avatarDir - кэш только в памяти.
func NewClient(avatarDir string, logger *slog.Logger) *Client {
	return &Client{
		avatarDir: avatarDir,
		logger:    logger,
		nicknames: make(map[string]string),
		avatars:   make(map[string][]byte),
	}
}

// Nickname возвращает детерминированный никнейм для hashID
func (c *Client) Nickname(ctx context.Context, hashID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.RLock()
	nickname, ok := c.nicknames[hashID]
	c.mu.RUnlock()
	if ok {
		return nickname, nil
	}

	seed, err := seedBytes(hashID, 4)
	if err != nil {
		return "", err
	}

	number := (int(seed[2])<<8 | int(seed[3])) % 1000
	nickname = fmt.Sprintf("%s%s%d",
		adjectives[int(seed[0])%len(adjectives)],
		nouns[int(seed[1])%len(nouns)],
		number)

	c.mu.Lock()
	c.nicknames[hashID] = nickname
	c.mu.Unlock()

	return nickname, nil
}

// Avatar возвращает PNG аватар для hashID, генерируя и кэшируя его при необходимости
func (c *Client) Avatar(ctx context.Context, hashID string, size AvatarSize) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := hashID + "." + string(size)

	c.mu.RLock()
	cached, ok := c.avatars[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	seed, err := seedBytes(hashID, 18)
	if err != nil {
		return nil, err
	}

	data, err := renderIdenticon(seed, size.Pixels())
	if err != nil {
		return nil, fmt.Errorf("failed to render avatar: %w", err)
	}

	c.mu.Lock()
	c.avatars[key] = data
	c.mu.Unlock()

	if c.avatarDir != "" {
		path := filepath.Join(c.avatarDir, key+".png")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			c.logger.Warn("Failed to write avatar cache",
				slog.String("path", path),
				slog.Any("error", err))
		}
	}

	return data, nil
}

func seedBytes(hashID string, n int) ([]byte, error) {
	raw, err := hex.DecodeString(hashID)
	if err != nil {
		return nil, fmt.Errorf("invalid hash id: %w", err)
	}

	if len(raw) < n {
		return nil, fmt.Errorf("hash id too short: %d bytes", len(raw))
	}

	return raw, nil
}

// renderIdenticon рисует симметричную сетку 5x5, цвет берется из первых байтов seed
func renderIdenticon(seed []byte, px int) ([]byte, error) {
	const cells = 5

	fg := color.RGBA{R: seed[0], G: seed[1], B: seed[2], A: 255}
	bg := color.RGBA{R: 240, G: 240, B: 240, A: 255}

	img := image.NewRGBA(image.Rect(0, 0, px, px))
	cell := px / cells

	for y := 0; y < px; y++ {
		for x := 0; x < px; x++ {
			img.Set(x, y, bg)
		}
	}

	for row := 0; row < cells; row++ {
		for col := 0; col < (cells+1)/2; col++ {
			if seed[3+row*3+col]&1 == 0 {
				continue
			}

			for _, c := range []int{col, cells - 1 - col} {
				for y := row * cell; y < (row+1)*cell; y++ {
					for x := c * cell; x < (c+1)*cell; x++ {
						img.Set(x, y, fg)
					}
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
