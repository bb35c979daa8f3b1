package localdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Tirta71/live-tiktok/internal/claim"
	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"github.com/Tirta71/live-tiktok/internal/types"
	"go.uber.org/zap"
)

// SetupWinnersTable creates the winners table.
func SetupWinnersTable(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS winners (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL,
			prize TEXT NOT NULL,
			spin_count INTEGER NOT NULL DEFAULT 0,
			reward_value INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL,
			resolved_at TIMESTAMP
		)
	`); err != nil {
		logger.Error("Failed to create winners table", zap.Error(err))
		return fmt.Errorf("failed to create winners table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_winners_username_status ON winners(username, status)`); err != nil {
		logger.Warn("Failed to create winners index", zap.Error(err))
	}

	return nil
}

// SaveWinner inserts a pending winner record for a result submission.
// The username is stored normalized so resolve and history match it regardless of case.
func SaveWinner(ctx context.Context, sub types.ResultSubmission) (types.WinnerRecord, error) {
	db := GetDB()
	if db == nil {
		return types.WinnerRecord{}, ErrDBNotInitialized
	}

	record := types.WinnerRecord{
		Username:    claim.NormalizeIdentity(sub.Identity),
		Prize:       strings.TrimSpace(sub.Prize),
		SpinCount:   sub.SpinCount,
		RewardValue: sub.RewardValue,
		Status:      types.WinnerStatusPending,
		CreatedAt:   time.Now(),
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO winners (username, prize, spin_count, reward_value, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		record.Username,
		record.Prize,
		record.SpinCount,
		record.RewardValue,
		string(record.Status),
		record.CreatedAt,
	)
	if err != nil {
		logger.Error("Failed to save winner", zap.Error(err), zap.String("username", record.Username))
		return types.WinnerRecord{}, fmt.Errorf("failed to save winner: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	}
	return record, nil
}

// ResolveWinnersByUsername marks every pending record for username as resolved.
// Returns the number of records updated.
func ResolveWinnersByUsername(ctx context.Context, username string) (int64, error) {
	db := GetDB()
	if db == nil {
		return 0, ErrDBNotInitialized
	}

	result, err := db.ExecContext(ctx, `
		UPDATE winners SET status = ?, resolved_at = ?
		WHERE username = ? AND status = ?
	`,
		string(types.WinnerStatusResolved),
		time.Now(),
		claim.NormalizeIdentity(username),
		string(types.WinnerStatusPending),
	)
	if err != nil {
		logger.Error("Failed to resolve winners", zap.Error(err), zap.String("username", username))
		return 0, fmt.Errorf("failed to resolve winners: %w", err)
	}

	updated, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve winners: %w", err)
	}
	return updated, nil
}

// GetWinnerHistory returns winner records grouped by (username, status), latest first.
func GetWinnerHistory(ctx context.Context) ([]types.WinnerHistoryGroup, error) {
	db := GetDB()
	if db == nil {
		return []types.WinnerHistoryGroup{}, ErrDBNotInitialized
	}

	rows, err := db.QueryContext(ctx, `
		SELECT username, status, prize, spin_count, reward_value, created_at
		FROM winners
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		logger.Error("Failed to get winner history", zap.Error(err))
		return []types.WinnerHistoryGroup{}, fmt.Errorf("failed to get winner history: %w", err)
	}
	defer rows.Close()

	groups := []types.WinnerHistoryGroup{}
	index := map[string]int{}
	for rows.Next() {
		var (
			username, status, prize string
			spins, reward           int
			createdAt               time.Time
		)
		if err := rows.Scan(&username, &status, &prize, &spins, &reward, &createdAt); err != nil {
			logger.Error("Failed to scan winner", zap.Error(err))
			return []types.WinnerHistoryGroup{}, fmt.Errorf("failed to scan winner: %w", err)
		}

		key := username + "\x00" + status
		i, ok := index[key]
		if !ok {
			// 最初に出てくる行が最新
			groups = append(groups, types.WinnerHistoryGroup{
				Username:  username,
				Status:    types.WinnerStatus(status),
				Prizes:    []string{},
				LastWonAt: createdAt,
			})
			i = len(groups) - 1
			index[key] = i
		}
		group := &groups[i]
		group.Wins++
		group.TotalSpins += spins
		group.TotalReward += reward
		group.Prizes = append(group.Prizes, prize)
	}

	if err := rows.Err(); err != nil {
		logger.Error("Error iterating winners", zap.Error(err))
		return []types.WinnerHistoryGroup{}, fmt.Errorf("failed to iterate winners: %w", err)
	}

	return groups, nil
}

// WinnerStore はエンジンから使う当選記録の保存先
type WinnerStore struct{}

func (WinnerStore) SaveWinner(ctx context.Context, sub types.ResultSubmission) (types.WinnerRecord, error) {
	return SaveWinner(ctx, sub)
}
