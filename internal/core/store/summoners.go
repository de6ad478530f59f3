package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riftproxy/riftproxy/internal/core"
)

// LoadSummoners returns all stored summoners in insertion order.
func (s *Store) LoadSummoners(ctx context.Context) ([]core.Summoner, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, profile_icon_id, revision_date, summoner_level
		FROM summoners
		ORDER BY position, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list summoners: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	summoners := make([]core.Summoner, 0)
	for rows.Next() {
		var summoner core.Summoner
		if err := rows.Scan(&summoner.ID, &summoner.Name, &summoner.ProfileIconID, &summoner.RevisionDate, &summoner.SummonerLevel); err != nil {
			return nil, fmt.Errorf("scan summoner: %w", err)
		}
		summoners = append(summoners, summoner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list summoners: %w", err)
	}

	return summoners, nil
}

// SaveSummoners upserts every summoner in one transaction.
func (s *Store) SaveSummoners(ctx context.Context, summoners []core.Summoner) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin summoner save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Unix()
	for i, summoner := range summoners {
		if summoner.ID == "" {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO summoners (id, name, profile_icon_id, revision_date, summoner_level, position, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				profile_icon_id = excluded.profile_icon_id,
				revision_date = excluded.revision_date,
				summoner_level = excluded.summoner_level,
				position = excluded.position,
				updated_at = excluded.updated_at
		`, summoner.ID, summoner.Name, summoner.ProfileIconID, summoner.RevisionDate, summoner.SummonerLevel, i, now)
		if err != nil {
			return fmt.Errorf("save summoner %s: %w", summoner.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit summoner save: %w", err)
	}
	return nil
}
