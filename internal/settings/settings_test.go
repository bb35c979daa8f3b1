package settings

import (
	"path/filepath"
	"testing"

	"github.com/Tirta71/live-tiktok/internal/localdb"
)

func setupManager(t *testing.T) *SettingsManager {
	t.Helper()

	if localdb.DBClient != nil {
		_ = localdb.Close()
	}
	db, err := localdb.SetupDB(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("SetupDB failed: %v", err)
	}
	t.Cleanup(func() { _ = localdb.Close() })

	return NewSettingsManager(db)
}

func TestValidateSetting(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		wantErr bool
	}{
		{"MATCH_WINDOW_SECONDS", "300", false},
		{"MATCH_WINDOW_SECONDS", "0", false},
		{"MATCH_WINDOW_SECONDS", "-1", true},
		{"MAX_COMMENTS", "0", true},
		{"MAX_COMMENTS", "abc", true},
		{"COINS_PER_SPIN", "30", false},
		{"COINS_PER_SPIN", "0", true},
		{"MAX_SPINS_PER_EVENT", "100", false},
		{"MAX_SPINS_PER_EVENT", "0", true},
		{"MAX_SPINS_PER_EVENT", "10001", true},
		{"COMMENT_BUFFER_POLICY", "retain", false},
		{"COMMENT_BUFFER_POLICY", "keep", true},
		{"OVERLAY_PUBLIC_URL", "", false},
		{"OVERLAY_PUBLIC_URL", "https://example.com/overlay", false},
		{"OVERLAY_PUBLIC_URL", "example.com", true},
		{"TWITCH_CLIENT_ID", "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			err := ValidateSetting(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSetting(%q, %q) err=%v wantErr=%v", tt.key, tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestDefaultsAreValid(t *testing.T) {
	for key, setting := range DefaultSettings {
		if err := ValidateSetting(key, setting.Value); err != nil {
			t.Fatalf("default for %s is invalid: %v", key, err)
		}
	}
}

func TestSettingsManager_GetSet(t *testing.T) {
	sm := setupManager(t)

	got, err := sm.GetSetting("COINS_PER_SPIN")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got != "30" {
		t.Fatalf("default got=%q want=%q", got, "30")
	}

	if err := sm.SetSetting("COINS_PER_SPIN", "50"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	got, _ = sm.GetSetting("COINS_PER_SPIN")
	if got != "50" {
		t.Fatalf("after set got=%q want=%q", got, "50")
	}

	if err := sm.SetSetting("NOT_A_KEY", "1"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSettingsManager_MigrateFromEnv(t *testing.T) {
	sm := setupManager(t)
	t.Setenv("MATCH_WINDOW_SECONDS", "120")
	t.Setenv("MAX_COMMENTS", "bogus")

	if err := sm.MigrateFromEnv(); err != nil {
		t.Fatalf("MigrateFromEnv failed: %v", err)
	}

	if got, _ := sm.GetSetting("MATCH_WINDOW_SECONDS"); got != "120" {
		t.Fatalf("MATCH_WINDOW_SECONDS got=%q want=%q", got, "120")
	}
	if got, _ := sm.GetSetting("MAX_COMMENTS"); got != "5" {
		t.Fatalf("invalid env value should be ignored: got=%q", got)
	}
}

func TestMaskSecrets(t *testing.T) {
	sm := setupManager(t)
	if err := sm.SetSetting("TWITCH_ACCESS_TOKEN", "secret-token"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	all, err := sm.GetAllSettings()
	if err != nil {
		t.Fatalf("GetAllSettings failed: %v", err)
	}
	masked := MaskSecrets(all)

	token := masked["TWITCH_ACCESS_TOKEN"]
	if token.Value == "secret-token" || !token.HasValue {
		t.Fatalf("token not masked: %+v", token)
	}
	if all["TWITCH_ACCESS_TOKEN"].Value != "secret-token" {
		t.Fatal("MaskSecrets mutated input")
	}
	if masked["COINS_PER_SPIN"].Value != "30" {
		t.Fatalf("normal setting changed: %+v", masked["COINS_PER_SPIN"])
	}
}
