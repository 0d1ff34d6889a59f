package database

import (
	"fmt"

	"github.com/lysyi3m/epg-comb/app/store"
)

var _ ChannelRepository = (*ChannelRepositoryImpl)(nil)

// ChannelRepositoryImpl persists the channel catalog
type ChannelRepositoryImpl struct {
	db *DB
}

func NewChannelRepository(db *DB) *ChannelRepositoryImpl {
	return &ChannelRepositoryImpl{db: db}
}

// LoadCatalog returns every known channel ordered by id, so the in-memory
// catalog comes back in the order channels were first seen.
func (r *ChannelRepositoryImpl) LoadCatalog() ([]store.Channel, error) {
	rows, err := r.db.Query(`
		SELECT id, alias, name, icon_url, stale
		FROM channels
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	defer rows.Close()

	var channels []store.Channel
	for rows.Next() {
		var c store.Channel
		if err := rows.Scan(&c.ID, &c.Alias, &c.Name, &c.IconURL, &c.Stale); err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		channels = append(channels, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel rows: %w", err)
	}

	return channels, nil
}

// SaveCatalog replaces the stored catalog with the given channels in one
// transaction, keeping their ids.
func (r *ChannelRepositoryImpl) SaveCatalog(channels []store.Channel) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin catalog transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM channels"); err != nil {
		return fmt.Errorf("failed to clear channels: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO channels (id, alias, name, icon_url, stale)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare channel insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range channels {
		if _, err := stmt.Exec(c.ID, c.Alias, c.Name, c.IconURL, c.Stale); err != nil {
			return fmt.Errorf("failed to insert channel %s: %w", c.Alias, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}

	return nil
}
