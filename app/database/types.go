package database

import (
	"time"

	"github.com/lysyi3m/epg-comb/app/store"
)

// UpdateStatus records the outcome of one feed refresh attempt.
type UpdateStatus struct {
	ID           int64
	CheckedAt    time.Time
	OK           bool
	Message      string
	LastModified string // Last-Modified header of the last successful fetch
}

type ChannelRepository interface {
	LoadCatalog() ([]store.Channel, error)
	SaveCatalog(channels []store.Channel) error
}

type ProgramRepository interface {
	LoadGeneration() (map[string][]store.Program, error)
	SaveGeneration(programs map[string][]store.Program) error
}

type StatusRepository interface {
	GetLastUpdate() (*UpdateStatus, error)
	InsertUpdateStatus(status UpdateStatus) error
}
