package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lysyi3m/epg-comb/app/cfg"
	"github.com/lysyi3m/epg-comb/app/config"
	"github.com/lysyi3m/epg-comb/app/database"
	"github.com/lysyi3m/epg-comb/app/store"
	"github.com/lysyi3m/epg-comb/app/xmltv"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	sourceConfig *config.SourceConfig
	store        *store.Store
	statusRepo   database.StatusRepository
	channelRepo  database.ChannelRepository
	programRepo  database.ProgramRepository
	httpClient   *http.Client
	parser       *xmltv.Parser
	userAgent    string
	interval     time.Duration
	workerCount  int
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	taskQueue    chan TaskInterface
}

func NewScheduler(sourceConfig *config.SourceConfig, programStore *store.Store,
	statusRepo database.StatusRepository, channelRepo database.ChannelRepository,
	programRepo database.ProgramRepository, httpClient *http.Client, parser *xmltv.Parser) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		sourceConfig: sourceConfig,
		store:        programStore,
		statusRepo:   statusRepo,
		channelRepo:  channelRepo,
		programRepo:  programRepo,
		httpClient:   httpClient,
		parser:       parser,
		userAgent:    cfg.UserAgent,
		interval:     time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount:  cfg.WorkerCount,
		ctx:          ctx,
		cancel:       cancel,
		taskQueue:    make(chan TaskInterface, 100),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()

}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueStartupTasks() {
	// The first fetch runs immediately; conditional GET keeps it cheap
	// when the source has not changed since the persisted generation.
	refreshTask := s.newRefreshTask()
	if err := s.EnqueueTask(refreshTask); err != nil {
		slog.Warn("Failed to enqueue RefreshFeedTask", "feed", s.sourceConfig.Feed.Name, "error", err)
	}
}

func (s *Scheduler) enqueueTasks() {
	last, err := s.statusRepo.GetLastUpdate()
	if err != nil {
		slog.Warn("Failed to read last update status, skipping", "feed", s.sourceConfig.Feed.Name, "error", err)
		return
	}

	if last != nil {
		next := last.CheckedAt.Add(s.sourceConfig.Settings.GetRefreshInterval())
		if next.After(time.Now().UTC()) {
			slog.Debug("Feed not due for refresh yet", "feed", s.sourceConfig.Feed.Name, "next_fetch_at", next)
			return
		}
	}

	refreshTask := s.newRefreshTask()
	if err := s.EnqueueTask(refreshTask); err != nil {
		slog.Warn("Failed to enqueue RefreshFeedTask", "feed", s.sourceConfig.Feed.Name, "error", err)
	}
}

func (s *Scheduler) newRefreshTask() *RefreshFeedTask {
	return NewRefreshFeedTask(s.sourceConfig.Feed.Name, s.sourceConfig, s.httpClient,
		s.parser, s.store, s.statusRepo, s.channelRepo, s.programRepo, s, s.userAgent)
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "feed", task.GetFeedName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
