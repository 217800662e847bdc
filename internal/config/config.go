package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config содержит конфигурацию приложения
type Config struct {
	Address         string
	DBPath          string
	LogFile         string
	FederationFile  string
	Network         string // mainnet | testnet
	JWTSecret       string
	AvatarDir       string
	CORSOrigins     []string // пусто - любой origin
	RefreshInterval time.Duration
	Token           string // токен слота, открываемого при старте (опционально)

	TelegramToken  string
	TelegramChatID int64

	Coordinators []Coordinator
}

// Coordinator - запись федерации из TOML файла
type Coordinator struct {
	ShortAlias string `toml:"short_alias"`
	LongAlias  string `toml:"long_alias"`
	Mainnet    string `toml:"mainnet"`
	Testnet    string `toml:"testnet"`
	Enabled    bool   `toml:"enabled"`
}

// URL возвращает адрес координатора для сети
func (c Coordinator) URL(network string) string {
	if network == "testnet" {
		return c.Testnet
	}

	return c.Mainnet
}

type federationFile struct {
	Coordinators []Coordinator `toml:"coordinator"`
}

// Load загружает конфигурацию из переменных окружения
func Load(logger *slog.Logger) *Config {
	address := getenv("ADDRESS", "127.0.0.1:12596")
	dbPath := getenv("DB_PATH", "./garage.db")
	logFile := LogFilePath()
	federationPath := getenv("FEDERATION_FILE", "./federation.toml")

	network := getenv("NETWORK", "mainnet")
	if network != "mainnet" && network != "testnet" {
		logger.Warn("⚠️  Unknown NETWORK, falling back to mainnet", slog.String("network", network))
		network = "mainnet"
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "default-secret-change-me-in-production"

		logger.Warn("⚠️  JWT_SECRET not set, using default (insecure!)")
	}

	var corsOrigins []string
	for _, origin := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			corsOrigins = append(corsOrigins, origin)
		}
	}

	refreshInterval := 30 * time.Second
	if raw := os.Getenv("REFRESH_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			logger.Warn("⚠️  Invalid REFRESH_INTERVAL, using default",
				slog.String("value", raw),
				slog.Duration("default", refreshInterval))
		} else {
			refreshInterval = d
		}
	}

	var chatID int64
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			logger.Warn("⚠️  Invalid TELEGRAM_CHAT_ID, notifications disabled", slog.String("value", raw))
		} else {
			chatID = id
		}
	}

	coordinators, err := LoadFederation(federationPath)
	if err != nil {
		logger.Error("❌ Failed to load federation file",
			slog.String("path", federationPath),
			slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("🌐 Federation loaded",
		slog.String("network", network),
		slog.Int("coordinators", len(coordinators)))

	return &Config{
		Address:         address,
		DBPath:          dbPath,
		LogFile:         logFile,
		FederationFile:  federationPath,
		Network:         network,
		JWTSecret:       jwtSecret,
		CORSOrigins:     corsOrigins,
		AvatarDir:       os.Getenv("AVATAR_DIR"),
		RefreshInterval: refreshInterval,
		Token:           os.Getenv("GARAGE_TOKEN"),
		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:  chatID,
		Coordinators:    coordinators,
	}
}

// LoadFederation читает список координаторов из TOML файла
func LoadFederation(path string) ([]Coordinator, error) {
	var file federationFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, err
	}

	return validateCoordinators(file.Coordinators)
}

// ParseFederation разбирает список координаторов из TOML данных
func ParseFederation(data []byte) ([]Coordinator, error) {
	var file federationFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	return validateCoordinators(file.Coordinators)
}

func validateCoordinators(coordinators []Coordinator) ([]Coordinator, error) {
	seen := make(map[string]bool, len(coordinators))
	for _, c := range coordinators {
		if c.ShortAlias == "" {
			return nil, fmt.Errorf("coordinator without short_alias")
		}

		if seen[c.ShortAlias] {
			return nil, fmt.Errorf("duplicate coordinator %q", c.ShortAlias)
		}

		seen[c.ShortAlias] = true
	}

	return coordinators, nil
}

// LogFilePath возвращает путь к файлу лога. Нужен до загрузки остальной конфигурации.
func LogFilePath() string {
	return getenv("LOG_FILE", "garage.log")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
