package env

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Tirta71/live-tiktok/internal/correlator"
	"github.com/Tirta71/live-tiktok/internal/localdb"
	"github.com/Tirta71/live-tiktok/internal/settings"
	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	envPrefix       = "LIVE"
	defaultPort     = 3000
	defaultLogLevel = "info"
)

type EnvValue struct {
	// 起動時設定（フラグ / LIVE_* 環境変数）
	ServerPort int
	DBPath     string
	LogLevel   string
	DebugMode  bool

	// 突き合わせ・スピン設定（settingsテーブル）
	MatchWindow      time.Duration
	MaxComments      int
	BufferPolicy     string
	CoinsPerSpin     int
	MaxSpinsPerEvent int
	SpinAnimation    time.Duration
	SpinCooldown     time.Duration
	DuplicateTTL     time.Duration
	IdleSweepFactor  int
	EventRetention   time.Duration

	OverlayPublicURL string

	TwitchClientID    *string
	TwitchAccessToken *string
	TwitchUserID      *string
}

var Value EnvValue

// LoadDotEnv は .env を読み込む。無くてもエラーにしない。
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
	}
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", defaultPort)
	v.SetDefault("database.path", "")
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("debug", false)
}

// Bootstrap はDBを開く前に必要な設定を viper から読む
func Bootstrap(v *viper.Viper) error {
	port := v.GetInt("server.port")
	if port <= 0 || port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", port)
	}

	Value.ServerPort = port
	Value.DBPath = strings.TrimSpace(v.GetString("database.path"))
	Value.LogLevel = strings.ToLower(strings.TrimSpace(v.GetString("log.level")))
	Value.DebugMode = v.GetBool("debug")
	return nil
}

// LoadEnv はsettingsテーブルから実行時設定を読み込む（DB初期化後に呼ぶこと）
func LoadEnv() {
	db := localdb.GetDB()
	if db == nil {
		logger.Warn("Database not initialized, using default settings")
		applySettings(func(key string) string { return settings.DefaultSettings[key].Value })
		return
	}

	sm := settings.NewSettingsManager(db)
	if err := sm.MigrateFromEnv(); err != nil {
		logger.Warn("Failed to migrate settings from environment", zap.Error(err))
	}

	applySettings(func(key string) string {
		value, err := sm.GetSetting(key)
		if err != nil {
			logger.Warn("Failed to read setting", zap.String("key", key), zap.Error(err))
			return settings.DefaultSettings[key].Value
		}
		return value
	})

	logger.Info("Settings loaded",
		zap.Duration("match_window", Value.MatchWindow),
		zap.Int("max_comments", Value.MaxComments),
		zap.String("buffer_policy", Value.BufferPolicy),
		zap.Int("coins_per_spin", Value.CoinsPerSpin),
		zap.Bool("twitch_configured", Value.TwitchConfigured()))
}

func applySettings(get func(key string) string) {
	intOf := func(key string) int {
		raw := get(key)
		if err := settings.ValidateSetting(key, raw); err != nil {
			logger.Warn("Invalid setting, using default", zap.String("key", key), zap.String("value", raw), zap.Error(err))
			raw = settings.DefaultSettings[key].Value
		}
		n, _ := strconv.Atoi(raw)
		return n
	}
	stringOf := func(key string) string {
		raw := strings.TrimSpace(get(key))
		if err := settings.ValidateSetting(key, raw); err != nil {
			logger.Warn("Invalid setting, using default", zap.String("key", key), zap.String("value", raw), zap.Error(err))
			return settings.DefaultSettings[key].Value
		}
		return raw
	}
	optional := func(key string) *string {
		raw := strings.TrimSpace(get(key))
		if raw == "" {
			return nil
		}
		return &raw
	}

	Value.MatchWindow = time.Duration(intOf("MATCH_WINDOW_SECONDS")) * time.Second
	Value.MaxComments = intOf("MAX_COMMENTS")
	Value.BufferPolicy = stringOf("COMMENT_BUFFER_POLICY")
	Value.CoinsPerSpin = intOf("COINS_PER_SPIN")
	Value.MaxSpinsPerEvent = intOf("MAX_SPINS_PER_EVENT")
	Value.SpinAnimation = time.Duration(intOf("SPIN_ANIMATION_MS")) * time.Millisecond
	Value.SpinCooldown = time.Duration(intOf("SPIN_COOLDOWN_MS")) * time.Millisecond
	Value.DuplicateTTL = time.Duration(intOf("DUPLICATE_GUARD_SECONDS")) * time.Second
	Value.IdleSweepFactor = intOf("LEDGER_IDLE_SWEEP_FACTOR")
	Value.EventRetention = time.Duration(intOf("EVENT_HISTORY_RETENTION_HOURS")) * time.Hour
	Value.OverlayPublicURL = stringOf("OVERLAY_PUBLIC_URL")

	Value.TwitchClientID = optional("TWITCH_CLIENT_ID")
	Value.TwitchAccessToken = optional("TWITCH_ACCESS_TOKEN")
	Value.TwitchUserID = optional("TWITCH_USER_ID")
}

// TwitchConfigured はTwitch EventSubの接続情報が揃っているか
func (v EnvValue) TwitchConfigured() bool {
	return v.TwitchClientID != nil && v.TwitchAccessToken != nil && v.TwitchUserID != nil
}

// EngineConfig は読み込んだ設定をエンジン用に変換する
func (v EnvValue) EngineConfig() correlator.Config {
	return correlator.Config{
		MatchWindow:      v.MatchWindow,
		MaxComments:      v.MaxComments,
		BufferPolicy:     correlator.ParseBufferPolicy(v.BufferPolicy),
		CoinsPerSpin:     v.CoinsPerSpin,
		MaxSpinsPerEvent: v.MaxSpinsPerEvent,
		SpinAnimation:    v.SpinAnimation,
		SpinCooldown:     v.SpinCooldown,
		DuplicateTTL:     v.DuplicateTTL,
		IdleSweepFactor:  v.IdleSweepFactor,
	}
}
