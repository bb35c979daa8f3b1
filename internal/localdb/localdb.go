package localdb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var DBClient *sql.DB

// ErrDBNotInitialized は SetupDB 前にアクセスした場合に返る
var ErrDBNotInitialized = errors.New("database not initialized")

func SetupDB(dbPath string) (*sql.DB, error) {
	if DBClient != nil {
		return DBClient, nil
	}

	// WALモードとBusy Timeoutを設定（Race Condition対策）
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// SQLiteは単一ライターなので接続プールを1に制限
	db.SetMaxOpenConns(1)

	// settingsテーブル
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		setting_type TEXT NOT NULL DEFAULT 'normal',
		is_required BOOLEAN NOT NULL DEFAULT false,
		description TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}

	// winnersテーブル（スピン結果の当選記録）
	if err := SetupWinnersTable(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// live_eventsテーブル（ギフト・チャットの履歴）
	if err := SetupLiveEventsTable(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	DBClient = db
	logger.Info("Local database ready", zap.String("path", dbPath))
	return db, nil
}

// GetDB は現在のデータベース接続を返します
func GetDB() *sql.DB {
	return DBClient
}

// Close はデータベース接続を閉じる
func Close() error {
	if DBClient == nil {
		return nil
	}
	err := DBClient.Close()
	DBClient = nil
	return err
}
