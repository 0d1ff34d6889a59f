package tasks

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lysyi3m/epg-comb/app/config"
	"github.com/lysyi3m/epg-comb/app/database"
	"github.com/lysyi3m/epg-comb/app/store"
	"github.com/lysyi3m/epg-comb/app/xmltv"
)

// RefreshFeedTask fetches the XMLTV source, parses it and commits a new
// program generation. On success it enqueues a PersistGenerationTask so
// the snapshot survives restarts.
type RefreshFeedTask struct {
	Task
	SourceConfig *config.SourceConfig
	httpClient   *http.Client
	parser       *xmltv.Parser
	store        *store.Store
	statusRepo   database.StatusRepository
	channelRepo  database.ChannelRepository
	programRepo  database.ProgramRepository
	scheduler    TaskSchedulerInterface
	userAgent    string
}

func NewRefreshFeedTask(feedName string, sourceConfig *config.SourceConfig, httpClient *http.Client,
	parser *xmltv.Parser, programStore *store.Store, statusRepo database.StatusRepository,
	channelRepo database.ChannelRepository, programRepo database.ProgramRepository,
	scheduler TaskSchedulerInterface, userAgent string) *RefreshFeedTask {
	return &RefreshFeedTask{
		Task:         NewTask(TaskTypeRefreshFeed, feedName),
		SourceConfig: sourceConfig,
		httpClient:   httpClient,
		parser:       parser,
		store:        programStore,
		statusRepo:   statusRepo,
		channelRepo:  channelRepo,
		programRepo:  programRepo,
		scheduler:    scheduler,
		userAgent:    userAgent,
	}
}

func (t *RefreshFeedTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	lastModified := ""
	if last, err := t.statusRepo.GetLastUpdate(); err != nil {
		slog.Warn("Failed to read last update status", "feed", t.FeedName, "error", err)
	} else if last != nil && last.OK {
		lastModified = last.LastModified
	}

	body, newModified, notModified, err := t.fetchFeed(ctx, t.SourceConfig.Feed.URL, lastModified)
	if err != nil {
		t.recordStatus(false, err.Error(), lastModified)
		return fmt.Errorf("failed to fetch feed: %w", err)
	}
	if notModified {
		slog.Debug("Feed not modified, skipping", "feed", t.FeedName)
		t.recordStatus(true, "not modified", lastModified)
		return nil
	}
	defer body.Close()

	result, err := t.parser.Run(body)
	if err != nil {
		t.recordStatus(false, err.Error(), lastModified)
		return fmt.Errorf("failed to parse feed: %w", err)
	}

	if err := t.commitGeneration(result); err != nil {
		t.recordStatus(false, err.Error(), lastModified)
		return fmt.Errorf("failed to commit generation: %w", err)
	}

	t.recordStatus(true, "", newModified)

	persistTask := NewPersistGenerationTask(t.FeedName, t.store, t.channelRepo, t.programRepo)
	if err := t.scheduler.EnqueueTask(persistTask); err != nil {
		slog.Warn("Failed to enqueue PersistGenerationTask", "feed", t.FeedName, "error", err)
	}

	slog.Info("Task completed",
		"type", "RefreshFeed",
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"channels", len(result.Channels),
		"programs", len(result.Programs))

	return nil
}

// fetchFeed performs a conditional GET. It returns notModified=true on a
// 304 response, otherwise a decoded body and the new Last-Modified value.
func (t *RefreshFeedTask) fetchFeed(ctx context.Context, url, lastModified string) (io.ReadCloser, string, bool, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, t.SourceConfig.Settings.GetTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.userAgent)
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to fetch feed: %w", err)
	}

	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		return nil, "", true, nil
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", false, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	// Guide archives are commonly served gzipped regardless of headers;
	// sniff the magic bytes instead of trusting Content-Type.
	data, err := t.readBody(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, "", false, err
	}

	return data, resp.Header.Get("Last-Modified"), false, nil
}

func (t *RefreshFeedTask) readBody(body io.Reader) (io.ReadCloser, error) {
	buffered := bufio.NewReader(body)

	magic, err := buffered.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var reader io.Reader = buffered
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress response: %w", err)
		}
		reader = gz
	}

	// Drain into memory while the request context is still alive; the
	// parser runs after the connection is released.
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// commitGeneration loads the parse result into the standby generation and
// publishes it. Any failure aborts the refresh, leaving the previous
// generation serving.
func (t *RefreshFeedTask) commitGeneration(result *xmltv.Result) error {
	w, err := t.store.BeginRefresh()
	if err != nil {
		return err
	}

	overrides := t.SourceConfig.Aliases
	alias := func(id string) string {
		if mapped, ok := overrides[id]; ok {
			return mapped
		}
		return id
	}

	for _, c := range result.Channels {
		if err := w.UpsertChannel(alias(c.Alias), c.Name, c.IconURL); err != nil {
			w.Abort()
			return err
		}
	}
	for _, p := range result.Programs {
		program := store.Program{
			Begin:       p.Begin,
			End:         p.End,
			Title:       p.Title,
			Description: p.Description,
		}
		if err := w.Insert(alias(p.ChannelAlias), program); err != nil {
			w.Abort()
			return err
		}
	}

	return w.Commit()
}

func (t *RefreshFeedTask) recordStatus(ok bool, message, lastModified string) {
	status := database.UpdateStatus{
		CheckedAt:    time.Now().UTC(),
		OK:           ok,
		Message:      message,
		LastModified: lastModified,
	}
	if err := t.statusRepo.InsertUpdateStatus(status); err != nil {
		slog.Warn("Failed to record update status", "feed", t.FeedName, "error", err)
	}
}
