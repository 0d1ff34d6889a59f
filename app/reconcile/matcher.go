package reconcile

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Scorer computes similarity scores between a query string and a fixed set
// of indexed names. Implementations are interchangeable so the similarity
// algorithm can be swapped without touching the reconciler contract.
type Scorer interface {
	Index(names []string)
	// Scores returns one value per indexed name, in index order, in [0, 1].
	Scores(name string) []float64
}

// BigramScorer scores names by cosine similarity of character n-gram count
// vectors. Names are case-folded and padded before tokenization, so even
// an empty name produces a non-zero vector norm.
type BigramScorer struct {
	window int
	caser  cases.Caser
	vecs   []map[string]int
	norms  []float64
}

func NewBigramScorer() *BigramScorer {
	return &BigramScorer{
		window: 2,
		caser:  cases.Fold(),
	}
}

func (s *BigramScorer) Index(names []string) {
	s.vecs = make([]map[string]int, len(names))
	s.norms = make([]float64, len(names))
	for i, name := range names {
		vec := s.vectorize(name)
		s.vecs[i] = vec
		s.norms[i] = vectorNorm(vec)
	}
}

func (s *BigramScorer) Scores(name string) []float64 {
	query := s.vectorize(name)
	queryNorm := vectorNorm(query)

	scores := make([]float64, len(s.vecs))
	if queryNorm == 0 {
		return scores
	}
	for i, vec := range s.vecs {
		dot := 0
		for token, count := range query {
			dot += count * vec[token]
		}
		scores[i] = float64(dot) / (queryNorm * s.norms[i])
	}
	return scores
}

func (s *BigramScorer) vectorize(name string) map[string]int {
	padded := s.pad(s.caser.String(name))
	vec := make(map[string]int)

	runes := []rune(padded)
	for i := 0; i+s.window <= len(runes); i++ {
		token := string(runes[i : i+s.window])
		if strings.ContainsAny(token, "()") {
			continue
		}
		vec[token]++
	}
	return vec
}

func (s *BigramScorer) pad(name string) string {
	pad := strings.Repeat(" ", s.window-1)
	return pad + name + pad
}

func vectorNorm(vec map[string]int) float64 {
	sum := 0
	for _, count := range vec {
		sum += count * count
	}
	return math.Sqrt(float64(sum))
}

// Match points into the name set the matcher was built over.
type Match struct {
	Index int
	Score float64
}

// Matcher ranks indexed names against free-text queries.
type Matcher struct {
	scorer Scorer
}

func NewMatcher(names []string, scorer Scorer) *Matcher {
	scorer.Index(names)
	return &Matcher{scorer: scorer}
}

// SearchBest returns the single best match at or above threshold.
func (m *Matcher) SearchBest(name string, threshold float64) (Match, bool) {
	best := Match{Index: -1}
	for i, score := range m.scorer.Scores(name) {
		if score > best.Score {
			best = Match{Index: i, Score: score}
		}
	}
	if best.Index < 0 || best.Score < threshold {
		return Match{}, false
	}
	return best, true
}

// Search returns up to limit matches above threshold, descending by score.
// Ties keep index order, so equally similar catalog entries rank in
// catalog order.
func (m *Matcher) Search(name string, threshold float64, limit int) []Match {
	var matches []Match
	for i, score := range m.scorer.Scores(name) {
		if score > threshold {
			matches = append(matches, Match{Index: i, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
