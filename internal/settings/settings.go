package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"go.uber.org/zap"
)

type SettingType string

const (
	SettingTypeNormal SettingType = "normal"
	SettingTypeSecret SettingType = "secret"
)

type Setting struct {
	Key         string      `json:"key"`
	Value       string      `json:"value"`
	Type        SettingType `json:"type"`
	Required    bool        `json:"required"`
	Description string      `json:"description"`
	UpdatedAt   time.Time   `json:"updated_at"`
	HasValue    bool        `json:"has_value"` // シークレット値が設定されているかどうか
}

type SettingsManager struct {
	db *sql.DB
}

func NewSettingsManager(db *sql.DB) *SettingsManager {
	return &SettingsManager{db: db}
}

// 設定の定義
var DefaultSettings = map[string]Setting{
	// 突き合わせ設定
	"MATCH_WINDOW_SECONDS": {
		Key: "MATCH_WINDOW_SECONDS", Value: "300", Type: SettingTypeNormal, Required: false,
		Description: "Seconds after a gift during which chat is checked for claims (0 disables)",
	},
	"MAX_COMMENTS": {
		Key: "MAX_COMMENTS", Value: "5", Type: SettingTypeNormal, Required: false,
		Description: "Recent comments kept per gifter",
	},
	"COMMENT_BUFFER_POLICY": {
		Key: "COMMENT_BUFFER_POLICY", Value: "clear", Type: SettingTypeNormal, Required: false,
		Description: "What happens to the comment buffer on a new gift (clear or retain)",
	},
	"LEDGER_IDLE_SWEEP_FACTOR": {
		Key: "LEDGER_IDLE_SWEEP_FACTOR", Value: "3", Type: SettingTypeNormal, Required: false,
		Description: "Evict gifters idle longer than factor x match window (0 disables)",
	},

	// スピン設定
	"COINS_PER_SPIN": {
		Key: "COINS_PER_SPIN", Value: "30", Type: SettingTypeNormal, Required: false,
		Description: "Coins needed for one wheel spin",
	},
	"MAX_SPINS_PER_EVENT": {
		Key: "MAX_SPINS_PER_EVENT", Value: "100", Type: SettingTypeNormal, Required: false,
		Description: "Most wheel spins a single gift can queue",
	},
	"SPIN_ANIMATION_MS": {
		Key: "SPIN_ANIMATION_MS", Value: "6000", Type: SettingTypeNormal, Required: false,
		Description: "Wheel animation duration in milliseconds",
	},
	"SPIN_COOLDOWN_MS": {
		Key: "SPIN_COOLDOWN_MS", Value: "2000", Type: SettingTypeNormal, Required: false,
		Description: "Pause after each wheel animation in milliseconds",
	},

	// 当選記録
	"DUPLICATE_GUARD_SECONDS": {
		Key: "DUPLICATE_GUARD_SECONDS", Value: "5", Type: SettingTypeNormal, Required: false,
		Description: "Identical result submissions within this many seconds are dropped",
	},
	"EVENT_HISTORY_RETENTION_HOURS": {
		Key: "EVENT_HISTORY_RETENTION_HOURS", Value: "24", Type: SettingTypeNormal, Required: false,
		Description: "Hours of gift/chat history kept in the local database",
	},

	// オーバーレイ
	"OVERLAY_PUBLIC_URL": {
		Key: "OVERLAY_PUBLIC_URL", Value: "", Type: SettingTypeNormal, Required: false,
		Description: "Public overlay URL encoded in the QR code (defaults to the request host)",
	},

	// Twitch設定（機密情報）
	"TWITCH_CLIENT_ID": {
		Key: "TWITCH_CLIENT_ID", Value: "", Type: SettingTypeSecret, Required: false,
		Description: "Twitch API Client ID for the EventSub source",
	},
	"TWITCH_ACCESS_TOKEN": {
		Key: "TWITCH_ACCESS_TOKEN", Value: "", Type: SettingTypeSecret, Required: false,
		Description: "Twitch user access token for the EventSub source",
	},
	"TWITCH_USER_ID": {
		Key: "TWITCH_USER_ID", Value: "", Type: SettingTypeSecret, Required: false,
		Description: "Twitch broadcaster user ID to monitor",
	},
}

// 機能の有効性チェック
type FeatureStatus struct {
	TwitchConfigured bool     `json:"twitch_configured"`
	MissingSettings  []string `json:"missing_settings"`
	Warnings         []string `json:"warnings"`
}

func (sm *SettingsManager) CheckFeatureStatus() (*FeatureStatus, error) {
	status := &FeatureStatus{
		MissingSettings: []string{},
		Warnings:        []string{},
	}

	// Twitch設定チェック
	twitchComplete := true
	for _, key := range twitchKeys {
		if val, err := sm.GetSetting(key); err != nil || val == "" {
			status.MissingSettings = append(status.MissingSettings, key)
			twitchComplete = false
		}
	}
	status.TwitchConfigured = twitchComplete

	if window, _ := sm.GetSetting("MATCH_WINDOW_SECONDS"); window == "0" {
		status.Warnings = append(status.Warnings, "MATCH_WINDOW_SECONDS is 0 - chat is matched to gifts forever")
	}
	if factor, _ := sm.GetSetting("LEDGER_IDLE_SWEEP_FACTOR"); factor == "0" {
		status.Warnings = append(status.Warnings, "LEDGER_IDLE_SWEEP_FACTOR is 0 - gifters are only removed by explicit resolution")
	}

	return status, nil
}

var twitchKeys = []string{"TWITCH_CLIENT_ID", "TWITCH_ACCESS_TOKEN", "TWITCH_USER_ID"}

// CRUD操作
func (sm *SettingsManager) GetSetting(key string) (string, error) {
	var value string
	err := sm.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		// デフォルト値を返す
		if defaultSetting, exists := DefaultSettings[key]; exists {
			return defaultSetting.Value, nil
		}
		return "", fmt.Errorf("setting not found: %s", key)
	}
	return value, err
}

func (sm *SettingsManager) SetSetting(key, value string) error {
	// デフォルト設定が存在するかチェック
	defaultSetting, exists := DefaultSettings[key]
	if !exists {
		return fmt.Errorf("unknown setting key: %s", key)
	}

	_, err := sm.db.Exec(`
		INSERT INTO settings (key, value, setting_type, is_required, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value,
		string(defaultSetting.Type),
		defaultSetting.Required,
		defaultSetting.Description,
	)
	return err
}

func (sm *SettingsManager) GetAllSettings() (map[string]Setting, error) {
	rows, err := sm.db.Query(`
		SELECT key, value, setting_type, is_required, description, updated_at
		FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]Setting)
	for rows.Next() {
		var s Setting
		var settingType string
		var description sql.NullString
		err := rows.Scan(&s.Key, &s.Value, &settingType, &s.Required, &description, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		s.Type = SettingType(settingType)
		s.Description = description.String
		s.HasValue = s.Value != ""

		settings[s.Key] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// DBにない設定はデフォルト値で補完
	for key, defaultSetting := range DefaultSettings {
		if _, exists := settings[key]; !exists {
			defaultSetting.HasValue = defaultSetting.Value != ""
			settings[key] = defaultSetting
		}
	}

	return settings, nil
}

// MaskSecrets はAPIレスポンス用にシークレット値を伏せたコピーを返す
func MaskSecrets(all map[string]Setting) map[string]Setting {
	masked := make(map[string]Setting, len(all))
	for key, s := range all {
		if s.Type == SettingTypeSecret && s.Value != "" {
			s.Value = "********"
		}
		masked[key] = s
	}
	return masked
}

// 環境変数からの移行
func (sm *SettingsManager) MigrateFromEnv() error {
	logger.Info("Starting migration from environment variables")
	migrated := 0

	for key := range DefaultSettings {
		// 既にDB設定が存在する場合はスキップ
		var existingKey string
		if err := sm.db.QueryRow("SELECT key FROM settings WHERE key = ?", key).Scan(&existingKey); err == nil {
			continue
		}

		envValue := os.Getenv(key)
		if envValue == "" {
			continue
		}
		if err := ValidateSetting(key, envValue); err != nil {
			logger.Warn("Ignoring invalid environment setting", zap.String("key", key), zap.Error(err))
			continue
		}
		if err := sm.SetSetting(key, envValue); err != nil {
			logger.Error("Failed to migrate setting", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("failed to migrate %s: %w", key, err)
		}
		logger.Info("Migrated setting from environment", zap.String("key", key))
		migrated++
	}

	if migrated > 0 {
		logger.Info("Migration completed", zap.Int("migrated_count", migrated))

		if hasSecretInEnv() {
			logger.Warn("SECURITY WARNING: Twitch credentials found in environment variables.")
			logger.Warn("Please remove TWITCH_ACCESS_TOKEN from .env after confirming the migration is successful.")
		}
	}

	return nil
}

func hasSecretInEnv() bool {
	for _, key := range twitchKeys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func intRange(value string, min, max int) error {
	val, err := strconv.Atoi(value)
	if err != nil || val < min || val > max {
		return fmt.Errorf("must be integer between %d and %d", min, max)
	}
	return nil
}

// バリデーション
func ValidateSetting(key, value string) error {
	switch key {
	case "MATCH_WINDOW_SECONDS":
		return intRange(value, 0, 86400)
	case "MAX_COMMENTS":
		return intRange(value, 1, 50)
	case "COINS_PER_SPIN":
		return intRange(value, 1, 1000000)
	case "MAX_SPINS_PER_EVENT":
		return intRange(value, 1, 10000)
	case "SPIN_ANIMATION_MS", "SPIN_COOLDOWN_MS":
		return intRange(value, 0, 600000)
	case "DUPLICATE_GUARD_SECONDS":
		return intRange(value, 0, 3600)
	case "LEDGER_IDLE_SWEEP_FACTOR":
		return intRange(value, 0, 100)
	case "EVENT_HISTORY_RETENTION_HOURS":
		return intRange(value, 1, 24*365)
	case "COMMENT_BUFFER_POLICY":
		if value != "clear" && value != "retain" {
			return fmt.Errorf("must be 'clear' or 'retain'")
		}
	case "OVERLAY_PUBLIC_URL":
		if value != "" {
			u, err := url.Parse(value)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("must be an absolute http(s) URL")
			}
		}
	}
	return nil
}

// 初期設定のセットアップ
func (sm *SettingsManager) InitializeDefaultSettings() error {
	for key, setting := range DefaultSettings {
		// 既に設定が存在する場合はスキップ
		var existingKey string
		if err := sm.db.QueryRow("SELECT key FROM settings WHERE key = ?", key).Scan(&existingKey); err == nil {
			continue
		}

		// デフォルト値で初期化
		if err := sm.SetSetting(key, setting.Value); err != nil {
			return fmt.Errorf("failed to initialize setting %s: %w", key, err)
		}
	}
	return nil
}
