package localdb

import (
	"database/sql"
	"time"

	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"go.uber.org/zap"
)

const (
	LiveEventGift = "gift"
	LiveEventChat = "chat"
)

// LiveEventRow は配信元から届いたギフト・チャット1件
type LiveEventRow struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	UserID    string `json:"userId"`
	Nickname  string `json:"nickname"`
	Text      string `json:"text,omitempty"`
	GiftName  string `json:"giftName,omitempty"`
	GiftCount int    `json:"giftCount,omitempty"`
	Coins     int    `json:"coins,omitempty"`
	Final     bool   `json:"final,omitempty"`
	CreatedAt int64  `json:"createdAt"` // unix ms
}

// SetupLiveEventsTable creates the live_events table for the event journal.
func SetupLiveEventsTable(db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS live_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		user_id TEXT NOT NULL,
		nickname TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		gift_name TEXT NOT NULL DEFAULT '',
		gift_count INTEGER NOT NULL DEFAULT 0,
		coins INTEGER NOT NULL DEFAULT 0,
		final BOOLEAN NOT NULL DEFAULT false,
		created_at INTEGER NOT NULL
	)`

	if _, err := db.Exec(createTableSQL); err != nil {
		logger.Error("Failed to create live_events table", zap.Error(err))
		return err
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_live_events_created_at ON live_events(created_at)`); err != nil {
		logger.Warn("Failed to create live_events index", zap.Error(err))
	}

	return nil
}

// AddLiveEvent inserts one journal row.
func AddLiveEvent(event LiveEventRow) (int64, error) {
	db := GetDB()
	if db == nil {
		return 0, ErrDBNotInitialized
	}

	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().UnixMilli()
	}

	result, err := db.Exec(`
	INSERT INTO live_events (kind, user_id, nickname, text, gift_name, gift_count, coins, final, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.Kind,
		event.UserID,
		event.Nickname,
		event.Text,
		event.GiftName,
		event.GiftCount,
		event.Coins,
		event.Final,
		event.CreatedAt,
	)
	if err != nil {
		logger.Error("Failed to insert live event", zap.Error(err))
		return 0, err
	}

	return result.LastInsertId()
}

// GetLiveEventsSince returns events at or after sinceMs (unix ms), oldest first.
func GetLiveEventsSince(sinceMs int64, limit int) ([]LiveEventRow, error) {
	db := GetDB()
	if db == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
	SELECT id, kind, user_id, nickname, text, gift_name, gift_count, coins, final, created_at
	FROM live_events
	WHERE created_at >= ?
	ORDER BY created_at ASC, id ASC
	`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = db.Query(query+" LIMIT ?", sinceMs, limit)
	} else {
		rows, err = db.Query(query, sinceMs)
	}
	if err != nil {
		logger.Error("Failed to query live events", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	events := []LiveEventRow{}
	for rows.Next() {
		var row LiveEventRow
		if err := rows.Scan(
			&row.ID,
			&row.Kind,
			&row.UserID,
			&row.Nickname,
			&row.Text,
			&row.GiftName,
			&row.GiftCount,
			&row.Coins,
			&row.Final,
			&row.CreatedAt,
		); err != nil {
			logger.Error("Failed to scan live event", zap.Error(err))
			continue
		}
		events = append(events, row)
	}

	if err := rows.Err(); err != nil {
		logger.Error("Error iterating live events", zap.Error(err))
		return nil, err
	}

	return events, nil
}

// CleanupLiveEventsBefore deletes events older than cutoffMs (unix ms).
func CleanupLiveEventsBefore(cutoffMs int64) (int64, error) {
	db := GetDB()
	if db == nil {
		return 0, ErrDBNotInitialized
	}

	result, err := db.Exec(`DELETE FROM live_events WHERE created_at < ?`, cutoffMs)
	if err != nil {
		logger.Error("Failed to cleanup live events", zap.Error(err))
		return 0, err
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		logger.Debug("Cleaned up old live events", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}
