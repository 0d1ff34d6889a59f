package store

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	ErrRefreshInProgress = errors.New("refresh already in progress")
	ErrUnknownChannel    = errors.New("unknown channel")
	ErrInvalidInterval   = errors.New("program begin must precede end")
	ErrHandleClosed      = errors.New("write handle already committed or aborted")
)

// generation is one immutable snapshot of the program dataset. Programs are
// keyed by channel alias and sorted by Begin after commit; maxSpan records
// the longest program duration per channel so range queries can bound how
// far back an overlapping program may start.
type generation struct {
	programs map[string][]Program
	maxSpan  map[string]int64
	refs     int
}

func newGeneration() *generation {
	return &generation{
		programs: make(map[string][]Program),
		maxSpan:  make(map[string]int64),
	}
}

func (g *generation) clear() {
	g.programs = make(map[string][]Program)
	g.maxSpan = make(map[string]int64)
}

// Store holds two program-table generations and the channel catalog.
// Exactly one generation is active at any instant; commits republish the
// standby generation with a single atomic pointer swap, so readers never
// block on a refresh and a refresh never blocks on readers.
type Store struct {
	mu         sync.Mutex // generation bookkeeping and refcounts
	active     atomic.Pointer[generation]
	standby    *generation
	refreshing bool

	catMu    sync.RWMutex // catalog: single writer (refresh), many readers
	channels map[string]*Channel
	order    []string
	nextID   int64
}

func New() *Store {
	s := &Store{
		standby:  newGeneration(),
		channels: make(map[string]*Channel),
		nextID:   1,
	}
	s.active.Store(newGeneration())
	return s
}

// Restore seeds the catalog and active generation from the durable store.
// Startup only, before any concurrent access.
func (s *Store) Restore(channels []Channel, programs map[string][]Program) {
	for i := range channels {
		c := channels[i]
		if c.ID >= s.nextID {
			s.nextID = c.ID + 1
		}
		s.channels[c.Alias] = &c
		s.order = append(s.order, c.Alias)
	}

	gen := newGeneration()
	for alias, list := range programs {
		sorted := make([]Program, len(list))
		copy(sorted, list)
		indexPrograms(gen, alias, sorted)
	}
	s.active.Store(gen)
}

// Snapshot pins whichever generation is active at call time. The returned
// handle observes a fully consistent dataset for its entire lifetime, even
// across subsequent commits. Callers must Close it.
func (s *Store) Snapshot() *ReadHandle {
	s.mu.Lock()
	gen := s.active.Load()
	gen.refs++
	s.mu.Unlock()
	return &ReadHandle{store: s, gen: gen}
}

// BeginRefresh opens the standby generation for writing. At most one
// refresh may be in flight; concurrent calls fail with
// ErrRefreshInProgress. The standby is cleared here, lazily: if readers
// still pin the superseded generation a fresh one is allocated instead,
// so no generation is ever reclaimed under an outstanding handle.
func (s *Store) BeginRefresh() (*WriteHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshing {
		return nil, ErrRefreshInProgress
	}

	if s.standby.refs > 0 {
		s.standby = newGeneration()
	} else {
		s.standby.clear()
	}
	s.refreshing = true

	return &WriteHandle{
		store:   s,
		gen:     s.standby,
		pending: make(map[string]Channel),
		order:   nil,
	}, nil
}

// Channels returns a copy of the catalog in catalog order, stale entries
// included.
func (s *Store) Channels() []Channel {
	s.catMu.RLock()
	defer s.catMu.RUnlock()

	out := make([]Channel, 0, len(s.order))
	for _, alias := range s.order {
		out = append(out, *s.channels[alias])
	}
	return out
}

// ChannelByAlias resolves an alias, stale channels included.
func (s *Store) ChannelByAlias(alias string) (Channel, bool) {
	s.catMu.RLock()
	defer s.catMu.RUnlock()

	c, ok := s.channels[alias]
	if !ok {
		return Channel{}, false
	}
	return *c, true
}

// ReadHandle is a pinned reference to one generation. It stays valid and
// consistent until Close, regardless of concurrent commits.
type ReadHandle struct {
	store  *Store
	gen    *generation
	closed bool
}

// Close releases the generation. Superseded generations are reclaimed only
// once their last handle is closed.
func (h *ReadHandle) Close() {
	if h.closed {
		return
	}
	h.closed = true

	s := h.store
	s.mu.Lock()
	h.gen.refs--
	if h.gen.refs == 0 && s.active.Load() != h.gen && s.standby != h.gen {
		// Orphaned generation: superseded twice while this handle was
		// open. Drop its data now that nobody references it.
		h.gen.clear()
	}
	s.mu.Unlock()
}

// Programs exposes the pinned generation keyed by channel alias, each list
// sorted by begin time. The map and slices belong to the generation and
// must not be mutated.
func (h *ReadHandle) Programs() map[string][]Program {
	return h.gen.programs
}

// WriteHandle populates the standby generation. Nothing it writes is
// visible to readers until Commit.
type WriteHandle struct {
	store   *Store
	gen     *generation
	pending map[string]Channel // channel upserts, applied at commit
	order   []string           // pending in first-seen order
	skipped int
	done    bool
}

// UpsertChannel records a channel seen in the current feed. Applied to the
// catalog atomically at commit; channels absent from this refresh are
// flagged stale there, never deleted.
func (w *WriteHandle) UpsertChannel(alias, name, iconURL string) error {
	if w.done {
		return ErrHandleClosed
	}
	if _, seen := w.pending[alias]; !seen {
		w.order = append(w.order, alias)
	}
	w.pending[alias] = Channel{Alias: alias, Name: name, IconURL: iconURL}
	return nil
}

// Insert appends a program to the standby generation. Programs for aliases
// unknown to both this refresh and the existing catalog are counted and
// skipped, matching the ingest tolerance of the feed format.
func (w *WriteHandle) Insert(alias string, p Program) error {
	if w.done {
		return ErrHandleClosed
	}
	if p.Begin >= p.End {
		return ErrInvalidInterval
	}

	if _, ok := w.pending[alias]; !ok {
		if _, ok := w.store.ChannelByAlias(alias); !ok {
			w.skipped++
			return nil
		}
	}
	w.gen.programs[alias] = append(w.gen.programs[alias], p)
	return nil
}

// Skipped reports how many programs referenced an unknown channel.
func (w *WriteHandle) Skipped() int {
	return w.skipped
}

// Commit sorts and indexes the standby generation, applies the buffered
// catalog upserts, and republishes the generation with a single atomic
// pointer swap. No reader ever observes a partially written generation.
func (w *WriteHandle) Commit() error {
	if w.done {
		return ErrHandleClosed
	}
	w.done = true

	for alias, list := range w.gen.programs {
		indexPrograms(w.gen, alias, list)
	}

	s := w.store
	s.catMu.Lock()
	for _, alias := range w.order {
		p := w.pending[alias]
		if existing, ok := s.channels[alias]; ok {
			existing.Name = p.Name
			existing.IconURL = p.IconURL
			existing.Stale = false
		} else {
			s.channels[alias] = &Channel{
				ID:      s.nextID,
				Alias:   alias,
				Name:    p.Name,
				IconURL: p.IconURL,
			}
			s.nextID++
			s.order = append(s.order, alias)
		}
	}
	for alias, c := range s.channels {
		if _, ok := w.pending[alias]; !ok {
			c.Stale = true
		}
	}
	s.catMu.Unlock()

	s.mu.Lock()
	old := s.active.Load()
	s.active.Store(w.gen)
	s.standby = old
	s.refreshing = false
	s.mu.Unlock()

	if w.skipped > 0 {
		slog.Warn("Skipped programs for unknown channels", "count", w.skipped)
	}
	return nil
}

// Abort discards the standby generation; the active generation and the
// catalog are left untouched.
func (w *WriteHandle) Abort() {
	if w.done {
		return
	}
	w.done = true

	s := w.store
	s.mu.Lock()
	w.gen.clear()
	s.refreshing = false
	s.mu.Unlock()
}

// indexPrograms sorts one channel's programs by begin time and records the
// longest span, making the slice immutable for the generation's lifetime.
func indexPrograms(gen *generation, alias string, list []Program) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Begin < list[j].Begin
	})
	var span int64
	for _, p := range list {
		if d := p.End - p.Begin; d > span {
			span = d
		}
	}
	gen.programs[alias] = list
	gen.maxSpan[alias] = span
}
