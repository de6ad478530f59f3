package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/riftproxy/riftproxy/internal/core"
)

const staticVersionKey = "LoL"

// LoadStaticVersion returns the stored static data version, or a zero value.
func (s *Store) LoadStaticVersion(ctx context.Context) (core.StaticVersion, error) {
	if s == nil || s.DB == nil {
		return core.StaticVersion{}, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var value string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM static_meta WHERE key = ?`, staticVersionKey).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.StaticVersion{}, nil
		}
		return core.StaticVersion{}, fmt.Errorf("fetch static version: %w", err)
	}
	return core.StaticVersion{Value: value}, nil
}

// SaveStaticVersion stores the static data version.
func (s *Store) SaveStaticVersion(ctx context.Context, version core.StaticVersion) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO static_meta (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, staticVersionKey, version.Value, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("save static version: %w", err)
	}
	return nil
}

// LoadCatalog returns the stored champion catalog, empty when none is stored.
func (s *Store) LoadCatalog(ctx context.Context) (core.ChampionCatalog, error) {
	if s == nil || s.DB == nil {
		return core.ChampionCatalog{}, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT champion_key, name, external_id, attributes, version FROM champions`)
	if err != nil {
		return core.ChampionCatalog{}, fmt.Errorf("list champions: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	catalog := core.ChampionCatalog{Data: map[string]core.ChampionEntry{}}
	for rows.Next() {
		var (
			key        string
			entry      core.ChampionEntry
			attributes string
			version    string
		)
		if err := rows.Scan(&key, &entry.Name, &entry.ExternalID, &attributes, &version); err != nil {
			return core.ChampionCatalog{}, fmt.Errorf("scan champion: %w", err)
		}
		if attributes != "" {
			if !json.Valid([]byte(attributes)) {
				return core.ChampionCatalog{}, fmt.Errorf("decode champion %s: invalid attributes", key)
			}
			entry.Attributes = json.RawMessage(attributes)
		}
		catalog.Data[key] = entry
		catalog.Version = version
	}
	if err := rows.Err(); err != nil {
		return core.ChampionCatalog{}, fmt.Errorf("list champions: %w", err)
	}

	return catalog, nil
}

// SaveCatalog replaces the stored champion catalog in one transaction.
func (s *Store) SaveCatalog(ctx context.Context, catalog core.ChampionCatalog) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM champions`); err != nil {
		return fmt.Errorf("clear champions: %w", err)
	}

	for key, entry := range catalog.Data {
		attributes, err := entry.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode champion %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO champions (champion_key, name, external_id, attributes, version)
			VALUES (?, ?, ?, ?, ?)
		`, key, entry.Name, entry.ExternalID, string(attributes), catalog.Version); err != nil {
			return fmt.Errorf("save champion %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog save: %w", err)
	}
	return nil
}
