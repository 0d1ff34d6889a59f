package reconcile

import (
	"io"

	"github.com/lysyi3m/epg-comb/app/store"
)

const (
	// SimGood is the similarity above which a playlist name is bound to a
	// catalog channel without asking.
	SimGood = 0.7
	// SimPossible is the floor below which a candidate is not even worth
	// suggesting.
	SimPossible = 0.45

	maxSuggestions = 10
)

// Candidate is one catalog channel proposed for a playlist name.
type Candidate struct {
	Alias string `json:"alias"`
	Name  string `json:"name"`
}

// ProcessedEntry is a playlist entry after automatic matching. Matched is
// the catalog alias bound to it, empty when no channel scored high enough.
type ProcessedEntry struct {
	Entry
	Matched string
	Score   float64
}

// Reconciler binds playlist entries to catalog channels by name
// similarity.
type Reconciler struct {
	channels []store.Channel
	matcher  *Matcher
}

func New(channels []store.Channel) *Reconciler {
	return NewWithScorer(channels, NewBigramScorer())
}

func NewWithScorer(channels []store.Channel, scorer Scorer) *Reconciler {
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = c.Name
	}
	return &Reconciler{
		channels: channels,
		matcher:  NewMatcher(names, scorer),
	}
}

// Suggest returns catalog channels plausibly matching name, best first.
// An empty result means nothing scored above the suggestion floor.
func (r *Reconciler) Suggest(name string) []Candidate {
	matches := r.matcher.Search(name, SimPossible, maxSuggestions)

	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		c := r.channels[m.Index]
		out = append(out, Candidate{Alias: c.Alias, Name: c.Name})
	}
	return out
}

// Process parses a playlist and auto-matches each entry. Entries scoring
// at or above SimGood get the catalog alias written into tvg-id; the rest
// have their tvg-id cleared so stale bindings never survive.
func (r *Reconciler) Process(src io.Reader) ([]ProcessedEntry, error) {
	entries, err := ParsePlaylist(src)
	if err != nil {
		return nil, err
	}

	out := make([]ProcessedEntry, 0, len(entries))
	for _, e := range entries {
		p := ProcessedEntry{Entry: e}
		if m, ok := r.matcher.SearchBest(e.Name(), SimGood); ok {
			p.Matched = r.channels[m.Index].Alias
			p.Score = m.Score
			p.Entry.SetTvgID(p.Matched)
		} else {
			p.Entry.SetTvgID("")
		}
		out = append(out, p)
	}
	return out, nil
}

// Apply binds an entry to the given catalog alias, returning the rewritten
// entry. An empty alias clears the binding.
func (r *Reconciler) Apply(e Entry, alias string) Entry {
	e.SetTvgID(alias)
	return e
}

// Export parses a playlist and rewrites it, applying corrections keyed by
// entry display name. Entries without a correction pass through untouched.
func (r *Reconciler) Export(src io.Reader, corrections map[string]string) ([]byte, error) {
	entries, err := ParsePlaylist(src)
	if err != nil {
		return nil, err
	}

	w := NewPlaylistWriter()
	for _, e := range entries {
		if alias, ok := corrections[e.Name()]; ok {
			e.SetTvgID(alias)
		}
		w.Push(e)
	}
	return w.Bytes(), nil
}
