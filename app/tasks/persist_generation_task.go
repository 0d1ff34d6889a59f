package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/epg-comb/app/database"
	"github.com/lysyi3m/epg-comb/app/store"
)

// PersistGenerationTask writes the active generation and the channel
// catalog to the database, so a restart can serve the last good snapshot
// before the first fetch completes.
type PersistGenerationTask struct {
	Task
	store       *store.Store
	channelRepo database.ChannelRepository
	programRepo database.ProgramRepository
}

func NewPersistGenerationTask(feedName string, programStore *store.Store,
	channelRepo database.ChannelRepository, programRepo database.ProgramRepository) *PersistGenerationTask {
	return &PersistGenerationTask{
		Task:        NewTask(TaskTypePersistGeneration, feedName),
		store:       programStore,
		channelRepo: channelRepo,
		programRepo: programRepo,
	}
}

func (t *PersistGenerationTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	snapshot := t.store.Snapshot()
	defer snapshot.Close()

	channels := t.store.Channels()
	if err := t.channelRepo.SaveCatalog(channels); err != nil {
		return fmt.Errorf("failed to persist catalog: %w", err)
	}

	programs := snapshot.Programs()
	if err := t.programRepo.SaveGeneration(programs); err != nil {
		return fmt.Errorf("failed to persist generation: %w", err)
	}

	programCount := 0
	for _, list := range programs {
		programCount += len(list)
	}

	slog.Info("Task completed",
		"type", "PersistGeneration",
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"channels", len(channels),
		"programs", programCount)

	return nil
}
