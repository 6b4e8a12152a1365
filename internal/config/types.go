// Package config loads the bot configuration. Settings come from an
// optional YAML/JSON file layered under environment variables: env always
// wins, so a bare env-only deployment needs no file at all. The file (when
// present) is watched and hot-reloaded; pacing changes apply to the next
// campaign, allow-list changes apply immediately.
package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Gateway  GatewayConfig  `json:"gateway"`
	Dispatch DispatchConfig `json:"dispatch"`
	Contacts ContactsConfig `json:"contacts"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	HTTP     HTTPConfig     `json:"http"`
}

type TelegramConfig struct {
	// Token is the control-channel credential. The process must not start
	// without it.
	Token string `json:"token" env:"TELEGRAM_BOT_TOKEN"`
	// Operators is the authorization allow-list. Empty means everyone.
	Operators []int64 `json:"operators" env:"OPERATOR_IDS"`
}

type GatewayConfig struct {
	URL   string `json:"url" env:"WA_GATEWAY_URL"`
	Token string `json:"token" env:"WA_GATEWAY_TOKEN"`
}

// DispatchConfig carries the pacing and retry knobs. Durations are
// milliseconds, matching the environment variable contract.
type DispatchConfig struct {
	MessageDelayMinMS   int  `json:"message_delay_min_ms" env:"MESSAGE_DELAY_MIN"`
	MessageDelayMaxMS   int  `json:"message_delay_max_ms" env:"MESSAGE_DELAY_MAX"`
	BatchSize           int  `json:"batch_size" env:"BATCH_SIZE"`
	BatchDelayMS        int  `json:"batch_delay_ms" env:"BATCH_DELAY"`
	MaxRetries          int  `json:"max_retries" env:"MAX_RETRIES"`
	RetryBackoffMS      int  `json:"retry_backoff_ms" env:"RETRY_BACKOFF"`
	EnableDeliveryCheck bool `json:"enable_delivery_check" env:"ENABLE_DELIVERY_CHECK"`
	HistoryMax          int  `json:"history_max" env:"HISTORY_MAX"`
}

func (d DispatchConfig) MinDelay() time.Duration     { return time.Duration(d.MessageDelayMinMS) * time.Millisecond }
func (d DispatchConfig) MaxDelay() time.Duration     { return time.Duration(d.MessageDelayMaxMS) * time.Millisecond }
func (d DispatchConfig) BatchDelay() time.Duration   { return time.Duration(d.BatchDelayMS) * time.Millisecond }
func (d DispatchConfig) RetryBackoff() time.Duration { return time.Duration(d.RetryBackoffMS) * time.Millisecond }

type ContactsConfig struct {
	CountryCode string   `json:"country_code" env:"COUNTRY_CODE"`
	AltPrefixes []string `json:"alt_prefixes" env:"ALT_PREFIXES"`
	// TestNumber is the operator's own channel number for /test sends.
	TestNumber string `json:"test_number" env:"TEST_NUMBER"`
}

type StorageConfig struct {
	Driver string `json:"driver" env:"STATE_DRIVER"`
	Path   string `json:"path" env:"STATE_PATH"`
}

type LoggingConfig struct {
	Level    string `json:"level" env:"LOG_LEVEL"`
	Console  bool   `json:"console" env:"LOG_CONSOLE"`
	FilePath string `json:"file_path" env:"LOG_FILE"`
}

type HTTPConfig struct {
	Addr string `json:"addr" env:"LISTEN_ADDR"`
	// Port is the short form; when set it wins over Addr.
	Port int `json:"port" env:"PORT"`
}

func (h HTTPConfig) ListenAddr() string {
	if h.Port > 0 {
		return fmt.Sprintf("127.0.0.1:%d", h.Port)
	}
	return h.Addr
}

// Default returns the baseline every load starts from; file and env layers
// only override what they mention.
func Default() Config {
	return Config{
		Dispatch: DispatchConfig{
			MessageDelayMinMS: 3000,
			MessageDelayMaxMS: 7000,
			BatchSize:         10,
			BatchDelayMS:      30000,
			MaxRetries:        3,
			RetryBackoffMS:    5000,
			HistoryMax:        200,
		},
		Contacts: ContactsConfig{CountryCode: "212"},
		Storage:  StorageConfig{Driver: "file", Path: "./blastbot_state.json"},
		Logging:  LoggingConfig{Level: "info", Console: true},
		HTTP:     HTTPConfig{Addr: "127.0.0.1:3000"},
	}
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if c.Dispatch.MessageDelayMinMS < 0 || c.Dispatch.MessageDelayMaxMS < c.Dispatch.MessageDelayMinMS {
		return fmt.Errorf("invalid message delay range [%d, %d]",
			c.Dispatch.MessageDelayMinMS, c.Dispatch.MessageDelayMaxMS)
	}
	if c.Dispatch.BatchSize < 0 || c.Dispatch.MaxRetries < 1 {
		return errors.New("batch_size must be >= 0 and max_retries >= 1")
	}
	return nil
}
