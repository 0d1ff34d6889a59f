package database

import (
	"fmt"

	"github.com/lysyi3m/epg-comb/app/store"
)

var _ ProgramRepository = (*ProgramRepositoryImpl)(nil)

// ProgramRepositoryImpl persists the latest committed program generation
type ProgramRepositoryImpl struct {
	db *DB
}

func NewProgramRepository(db *DB) *ProgramRepositoryImpl {
	return &ProgramRepositoryImpl{db: db}
}

// LoadGeneration returns the stored programs grouped by channel alias.
func (r *ProgramRepositoryImpl) LoadGeneration() (map[string][]store.Program, error) {
	rows, err := r.db.Query(`
		SELECT channel_alias, begin_at, end_at, title, description
		FROM programs
		ORDER BY channel_alias, begin_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load programs: %w", err)
	}
	defer rows.Close()

	programs := make(map[string][]store.Program)
	for rows.Next() {
		var alias string
		var p store.Program
		if err := rows.Scan(&alias, &p.Begin, &p.End, &p.Title, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan program row: %w", err)
		}
		programs[alias] = append(programs[alias], p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating program rows: %w", err)
	}

	return programs, nil
}

// SaveGeneration replaces the stored programs with the given generation in
// one transaction. A crash mid-save leaves the previous generation intact.
func (r *ProgramRepositoryImpl) SaveGeneration(programs map[string][]store.Program) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin generation transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM programs"); err != nil {
		return fmt.Errorf("failed to clear programs: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO programs (channel_alias, begin_at, end_at, title, description)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare program insert: %w", err)
	}
	defer stmt.Close()

	for alias, list := range programs {
		for _, p := range list {
			if _, err := stmt.Exec(alias, p.Begin, p.End, p.Title, p.Description); err != nil {
				return fmt.Errorf("failed to insert program for %s: %w", alias, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit generation: %w", err)
	}

	return nil
}
