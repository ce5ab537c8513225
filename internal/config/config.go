// Package config defines the configuration contract and handles loading and
// validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken       = "TELEGRAM_TOKEN"
	KeySuperAdmins         = "SUPERADMINS"
	KeyRequiredChannel     = "REQUIRED_CHANNEL_ID"
	KeyPanelBaseURL        = "PANEL_BASE_URL"
	KeyPanelWebBasePath    = "PANEL_WEB_BASE_PATH"
	KeyPanelUsername       = "PANEL_USERNAME"
	KeyPanelPassword       = "PANEL_PASSWORD"
	KeyDBPath              = "DB_PATH"
	KeyFailureLogPath      = "FAILURE_LOG_PATH"
	KeyReportInterval      = "REPORT_INTERVAL_MINUTES"
	KeyChangeCheckInterval = "CHANGE_CHECK_INTERVAL_MINUTES"
	KeyAppEnv              = "APP_ENV"
	KeyLogLevel            = "LOG_LEVEL"
	KeyHTTPPort            = "HTTP_PORT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv              = EnvProduction
	DefaultLogLevel            = "info"
	DefaultHTTPPort            = 8080
	DefaultDBPath              = "data.db"
	DefaultFailureLogPath      = "log.txt"
	DefaultReportInterval      = 10 * time.Minute
	DefaultChangeCheckInterval = time.Minute
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Secret      bool   // redacted in any printed output
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must
// rely on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
		Secret:      true,
	},
	{
		Key:         KeySuperAdmins,
		Example:     "123456789,987654321",
		Required:    true,
		Description: "Comma-separated Telegram user ids with super admin privileges.",
	},
	{
		Key:         KeyRequiredChannel,
		Example:     "@mychannel",
		Description: "Channel the user must join before using the bot; empty disables the check.",
	},
	{
		Key:         KeyPanelBaseURL,
		Example:     "https://panel.example.com:2053",
		Required:    true,
		Description: "Base URL of the x-ui panel.",
	},
	{
		Key:         KeyPanelWebBasePath,
		Example:     "/secret-path",
		Description: "Optional web base path prefix configured on the panel.",
	},
	{
		Key:         KeyPanelUsername,
		Example:     "admin",
		Required:    true,
		Description: "Panel login username.",
	},
	{
		Key:         KeyPanelPassword,
		Example:     "secret",
		Required:    true,
		Description: "Panel login password.",
		Secret:      true,
	},
	{
		Key:         KeyDBPath,
		Example:     DefaultDBPath,
		Default:     DefaultDBPath,
		Description: "Path to the local sqlite database file.",
	},
	{
		Key:         KeyFailureLogPath,
		Example:     DefaultFailureLogPath,
		Default:     DefaultFailureLogPath,
		Description: "Path to the append-only failure log.",
	},
	{
		Key:         KeyReportInterval,
		Example:     "10",
		Default:     "10",
		Description: "Minutes between periodic report pushes.",
	},
	{
		Key:         KeyChangeCheckInterval,
		Example:     "1",
		Default:     "1",
		Description: "Minutes between expiring/expired change-detection runs.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/diagnostics port.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken     string
	SuperAdmins       []int64
	RequiredChannelID string

	PanelBaseURL     string
	PanelWebBasePath string
	PanelUsername    string
	PanelPassword    string

	DBPath         string
	FailureLogPath string

	ReportInterval      time.Duration
	ChangeCheckInterval time.Duration

	AppEnv   string
	LogLevel string
	HTTPPort int
}

// Load resolves configuration from the environment (with optional dotenv in
// development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:              firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:       strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		RequiredChannelID:   strings.TrimSpace(os.Getenv(KeyRequiredChannel)),
		PanelUsername:       strings.TrimSpace(os.Getenv(KeyPanelUsername)),
		PanelPassword:       strings.TrimSpace(os.Getenv(KeyPanelPassword)),
		DBPath:              firstNonEmpty(strings.TrimSpace(os.Getenv(KeyDBPath)), DefaultDBPath),
		FailureLogPath:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeyFailureLogPath)), DefaultFailureLogPath),
		LogLevel:            firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:            DefaultHTTPPort,
		ReportInterval:      DefaultReportInterval,
		ChangeCheckInterval: DefaultChangeCheckInterval,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	adminsRaw := strings.TrimSpace(os.Getenv(KeySuperAdmins))
	if adminsRaw == "" {
		missing = append(missing, KeySuperAdmins)
	} else {
		admins, parseErr := parseAdminIDs(adminsRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeySuperAdmins, parseErr)
		}
		cfg.SuperAdmins = admins
	}

	cfg.PanelBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv(KeyPanelBaseURL)), "/")
	if cfg.PanelBaseURL == "" {
		missing = append(missing, KeyPanelBaseURL)
	}

	cfg.PanelWebBasePath = normalizeBasePath(os.Getenv(KeyPanelWebBasePath))

	if cfg.PanelUsername == "" {
		missing = append(missing, KeyPanelUsername)
	}
	if cfg.PanelPassword == "" {
		missing = append(missing, KeyPanelPassword)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if interval, err := parseMinutes(KeyReportInterval); err != nil {
		return Config{}, err
	} else if interval > 0 {
		cfg.ReportInterval = interval
	}

	if interval, err := parseMinutes(KeyChangeCheckInterval); err != nil {
		return Config{}, err
	} else if interval > 0 {
		cfg.ChangeCheckInterval = interval
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// IsSuperAdmin reports whether the given Telegram id is configured as a
// super admin.
func (c Config) IsSuperAdmin(telegramID int64) bool {
	for _, id := range c.SuperAdmins {
		if id == telegramID {
			return true
		}
	}
	return false
}

// FormatRedacted renders the resolved configuration with secret values
// masked, suitable for diagnostics output.
func FormatRedacted(cfg Config) string {
	values := map[string]string{
		KeyTelegramToken:       cfg.TelegramToken,
		KeySuperAdmins:         joinIDs(cfg.SuperAdmins),
		KeyRequiredChannel:     cfg.RequiredChannelID,
		KeyPanelBaseURL:        cfg.PanelBaseURL,
		KeyPanelWebBasePath:    cfg.PanelWebBasePath,
		KeyPanelUsername:       cfg.PanelUsername,
		KeyPanelPassword:       cfg.PanelPassword,
		KeyDBPath:              cfg.DBPath,
		KeyFailureLogPath:      cfg.FailureLogPath,
		KeyReportInterval:      strconv.Itoa(int(cfg.ReportInterval / time.Minute)),
		KeyChangeCheckInterval: strconv.Itoa(int(cfg.ChangeCheckInterval / time.Minute)),
		KeyAppEnv:              cfg.AppEnv,
		KeyLogLevel:            cfg.LogLevel,
		KeyHTTPPort:            strconv.Itoa(cfg.HTTPPort),
	}

	var b strings.Builder
	for _, spec := range Contract {
		value := values[spec.Key]
		if spec.Secret && value != "" {
			value = "[redacted]"
		}
		fmt.Fprintf(&b, "%s=%s\n", spec.Key, value)
	}

	return strings.TrimRight(b.String(), "\n")
}

func parseAdminIDs(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse admin id %q: %w", part, err)
		}
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, errors.New("no valid admin ids")
	}

	return ids, nil
}

func parseMinutes(key string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, nil
	}

	minutes, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if minutes <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return time.Duration(minutes) * time.Minute, nil
}

func normalizeBasePath(raw string) string {
	path := strings.TrimSpace(raw)
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(path, "/")
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
