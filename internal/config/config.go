package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	infisical "github.com/infisical/go-sdk"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/arqma/arqbot/internal/stats"
)

type Config struct {
	Port           string
	LogLevel       string
	FrontendOrigin string

	TelegramToken     string
	DiscordToken      string
	TelegramTokenFile string
	DiscordTokenFile  string

	PoolsPageURL   string
	PoolsDataURL   string
	NetworkInfoURL string
	EmissionURL    string
	PriceURL       string
	HTTPTimeout    time.Duration
	UserAgent      string
	PoolsBrowser   bool

	CoinName    string
	CoinTicker  string
	Exchange    string
	ContentFile string
}

// RegisterFlags declares every setting on fs so viper can bind them.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("port", "8080", "ops HTTP port")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("frontend-origin", "*", "allowed CORS origin for the ops API")

	fs.String("telegram-token", "", "Telegram bot token")
	fs.String("discord-token", "", "Discord bot token")
	fs.String("telegram-token-file", "token.info", "file holding the Telegram bot token")
	fs.String("discord-token-file", "discord_token.info", "file holding the Discord bot token")

	ep := stats.DefaultEndpoints()
	fs.String("pools-page-url", ep.PoolsPage, "pool listing page")
	fs.String("pools-data-url", ep.PoolsData, "pool data endpoint")
	fs.String("network-info-url", ep.NetworkInfo, "explorer network info endpoint")
	fs.String("emission-url", ep.Emission, "explorer emission endpoint")
	fs.String("price-url", ep.Price, "exchange ticker endpoint")
	fs.Duration("http-timeout", 15*time.Second, "timeout for each upstream request")
	fs.String("user-agent", "", "User-Agent sent upstream (empty uses the built-in browser-like value)")
	fs.Bool("pools-browser", false, "load the pool listing page in headless Chrome")

	fs.String("coin-name", "Arqma", "coin name shown in replies")
	fs.String("coin-ticker", "ARQ", "coin ticker shown in replies")
	fs.String("exchange", "TO", "exchange label shown on the price line")
	fs.String("content", "", "YAML file overriding links, help and greeting texts")
}

// Load merges config file, environment variables, and flags into Config.
// Bot tokens from files and Infisical are filled later by ResolveTokens.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARQBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("port", "ARQBOT_PORT", "PORT")
	_ = v.BindEnv("frontend-origin", "ARQBOT_FRONTEND_ORIGIN", "FRONTEND_ORIGIN")
	_ = v.BindEnv("telegram-token", "ARQBOT_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("discord-token", "ARQBOT_DISCORD_TOKEN", "DISCORD_BOT_TOKEN")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("arqbot")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Port:              v.GetString("port"),
		LogLevel:          v.GetString("log-level"),
		FrontendOrigin:    v.GetString("frontend-origin"),
		TelegramToken:     strings.TrimSpace(v.GetString("telegram-token")),
		DiscordToken:      strings.TrimSpace(v.GetString("discord-token")),
		TelegramTokenFile: v.GetString("telegram-token-file"),
		DiscordTokenFile:  v.GetString("discord-token-file"),
		PoolsPageURL:      v.GetString("pools-page-url"),
		PoolsDataURL:      v.GetString("pools-data-url"),
		NetworkInfoURL:    v.GetString("network-info-url"),
		EmissionURL:       v.GetString("emission-url"),
		PriceURL:          v.GetString("price-url"),
		HTTPTimeout:       v.GetDuration("http-timeout"),
		UserAgent:         v.GetString("user-agent"),
		PoolsBrowser:      v.GetBool("pools-browser"),
		CoinName:          v.GetString("coin-name"),
		CoinTicker:        v.GetString("coin-ticker"),
		Exchange:          v.GetString("exchange"),
		ContentFile:       v.GetString("content"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: port is required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("config: http-timeout must be positive, got %s", c.HTTPTimeout)
	}
	for name, u := range map[string]string{
		"pools-page-url":   c.PoolsPageURL,
		"pools-data-url":   c.PoolsDataURL,
		"network-info-url": c.NetworkInfoURL,
		"emission-url":     c.EmissionURL,
		"price-url":        c.PriceURL,
	} {
		if u == "" {
			return fmt.Errorf("config: %s is required", name)
		}
	}
	return nil
}

// ResolveTokens fills empty bot tokens from the token files, then from
// Infisical when its credentials are present. A token that stays empty
// disables its platform.
func (c *Config) ResolveTokens(logger *slog.Logger) {
	if c.TelegramToken == "" {
		c.TelegramToken = ReadTokenFile(logger, c.TelegramTokenFile)
	}
	if c.DiscordToken == "" {
		c.DiscordToken = ReadTokenFile(logger, c.DiscordTokenFile)
	}

	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" && (c.TelegramToken == "" || c.DiscordToken == "") {
		loadFromInfisical(c, logger, clientID, clientSecret)
	}
}

// ReadTokenFile returns the trimmed file contents, or "" when the file is
// missing or unreadable.
func ReadTokenFile(logger *slog.Logger, path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("token file not found", "path", path)
		} else {
			logger.Error("read token file", "path", path, "error", err)
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

func loadFromInfisical(cfg *Config, logger *slog.Logger, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL", "https://app.infisical.com")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		logger.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		logger.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"TELEGRAM_BOT_TOKEN": &cfg.TelegramToken,
		"DISCORD_BOT_TOKEN":  &cfg.DiscordToken,
	}

	for key, target := range secrets {
		if *target != "" {
			continue
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			logger.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = strings.TrimSpace(secret.SecretValue)
		logger.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
