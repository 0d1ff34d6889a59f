package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ StatusRepository = (*StatusRepositoryImpl)(nil)

// StatusRepositoryImpl records feed refresh outcomes
type StatusRepositoryImpl struct {
	db *DB
}

func NewStatusRepository(db *DB) *StatusRepositoryImpl {
	return &StatusRepositoryImpl{db: db}
}

// GetLastUpdate returns the most recent refresh record, nil when the feed
// has never been fetched.
func (r *StatusRepositoryImpl) GetLastUpdate() (*UpdateStatus, error) {
	var s UpdateStatus
	var checkedAt int64
	err := r.db.QueryRow(`
		SELECT id, checked_at, ok, message, last_modified
		FROM update_status
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&s.ID, &checkedAt, &s.OK, &s.Message, &s.LastModified)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last update status: %w", err)
	}

	s.CheckedAt = time.Unix(checkedAt, 0).UTC()
	return &s, nil
}

// InsertUpdateStatus appends a refresh record and prunes all but the last
// hundred so the table does not grow without bound.
func (r *StatusRepositoryImpl) InsertUpdateStatus(status UpdateStatus) error {
	_, err := r.db.Exec(`
		INSERT INTO update_status (checked_at, ok, message, last_modified)
		VALUES (?, ?, ?, ?)
	`, status.CheckedAt.Unix(), status.OK, status.Message, status.LastModified)
	if err != nil {
		return fmt.Errorf("failed to insert update status: %w", err)
	}

	_, err = r.db.Exec(`
		DELETE FROM update_status
		WHERE id NOT IN (SELECT id FROM update_status ORDER BY id DESC LIMIT 100)
	`)
	if err != nil {
		return fmt.Errorf("failed to prune update status: %w", err)
	}

	return nil
}
