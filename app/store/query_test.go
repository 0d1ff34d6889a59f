package store

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

func titles(programs []Program) []string {
	out := make([]string, 0, len(programs))
	for _, p := range programs {
		out = append(out, p.Title)
	}
	return out
}

func sampleStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	fillRefresh(t, s,
		map[string]string{"c1": "One", "c2": "Two", "c3": "Three"},
		map[string][]Program{
			"c1": {
				{Begin: 10, End: 20, Title: "a"},
				{Begin: 20, End: 25, Title: "b"},
				{Begin: 25, End: 40, Title: "c"},
			},
			"c2": {
				{Begin: 100, End: 300, Title: "p one"},
				{Begin: 300, End: 400, Title: "p two"},
			},
		})
	return s
}

func TestQueryDay(t *testing.T) {
	s := New()
	day := time.Date(2023, 7, 3, 0, 0, 0, 0, time.UTC)
	base := day.Unix()
	fillRefresh(t, s,
		map[string]string{"bbc1": "BBC One"},
		map[string][]Program{"bbc1": {
			// Spans midnight into the queried day.
			{Begin: base - 3600, End: base + 1800, Title: "late film"},
			{Begin: base + 3600, End: base + 7200, Title: "breakfast"},
			// Next day entirely.
			{Begin: base + 24*3600 + 60, End: base + 24*3600 + 120, Title: "tomorrow"},
		}})

	h := s.Snapshot()
	defer h.Close()

	programs, err := h.QueryDay("bbc1", day)
	if err != nil {
		t.Fatal(err)
	}
	if got := titles(programs); !reflect.DeepEqual(got, []string{"late film", "breakfast"}) {
		t.Errorf("Expected [late film breakfast], got %v", got)
	}

	// Repeated calls against the same generation are identical.
	again, err := h.QueryDay("bbc1", day)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(programs, again) {
		t.Error("Expected QueryDay to be idempotent on one snapshot")
	}

	if _, err := h.QueryDay("unknown", day); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Expected ErrUnknownChannel, got %v", err)
	}
}

func TestQueryDayStaleChannel(t *testing.T) {
	s := New()
	fillRefresh(t, s, map[string]string{"c1": "One", "c2": "Two"}, nil)
	fillRefresh(t, s, map[string]string{"c1": "One"}, nil)

	h := s.Snapshot()
	defer h.Close()

	// Stale channels still resolve for day queries.
	if _, err := h.QueryDay("c2", time.Now()); err != nil {
		t.Errorf("Expected stale channel to resolve, got %v", err)
	}
}

func TestQuerySlice(t *testing.T) {
	s := sampleStore(t)
	h := s.Snapshot()
	defer h.Close()

	out := h.QuerySlice(15, 105)

	if len(out) != 3 {
		t.Fatalf("Expected all 3 channels in the grid, got %d", len(out))
	}
	if out[0].ChannelAlias != "c1" || out[1].ChannelAlias != "c2" || out[2].ChannelAlias != "c3" {
		t.Fatalf("Expected catalog order c1,c2,c3, got %v", out)
	}

	// c1: "a" [10,20) intersects, "b" [20,25) intersects, "c" [25,40) intersects.
	if got := titles(out[0].Programs); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Expected c1 programs [a b c], got %v", got)
	}
	// c2: "p one" [100,300) begins inside the slice.
	if got := titles(out[1].Programs); !reflect.DeepEqual(got, []string{"p one"}) {
		t.Errorf("Expected c2 programs [p one], got %v", got)
	}
	// c3 has no programs but is still present.
	if len(out[2].Programs) != 0 {
		t.Errorf("Expected empty list for c3, got %v", out[2].Programs)
	}
	if out[2].Programs == nil {
		t.Error("Expected empty slice, not nil, for JSON rendering")
	}
}

func TestQuerySliceExcludesStale(t *testing.T) {
	s := New()
	fillRefresh(t, s, map[string]string{"c1": "One", "c2": "Two"}, nil)
	fillRefresh(t, s, map[string]string{"c1": "One"}, nil)

	h := s.Snapshot()
	defer h.Close()

	out := h.QuerySlice(0, 100)
	if len(out) != 1 || out[0].ChannelAlias != "c1" {
		t.Errorf("Expected only non-stale channels in slice, got %v", out)
	}
}

func TestQuerySliceMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	var generated []Program
	for i := 0; i < 200; i++ {
		begin := int64(rng.Intn(10000))
		length := int64(1 + rng.Intn(500))
		generated = append(generated, Program{
			Begin: begin,
			End:   begin + length,
			Title: string(rune('A' + i%26)),
		})
	}

	s := New()
	fillRefresh(t, s,
		map[string]string{"c1": "One"},
		map[string][]Program{"c1": generated})

	h := s.Snapshot()
	defer h.Close()

	for trial := 0; trial < 50; trial++ {
		from := int64(rng.Intn(11000))
		to := from + int64(rng.Intn(2000))

		got := h.QuerySlice(from, to)[0].Programs

		var want []Program
		for _, p := range h.gen.programs["c1"] {
			if p.Begin < to && p.End > from {
				want = append(want, p)
			}
		}
		if len(got) != len(want) {
			t.Fatalf("Slice [%d,%d): got %d programs, brute force %d", from, to, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Slice [%d,%d): mismatch at %d: %+v vs %+v", from, to, i, got[i], want[i])
			}
		}
	}
}

func TestQueryAt(t *testing.T) {
	s := sampleStore(t)
	h := s.Snapshot()
	defer h.Close()

	find := func(out []ChannelPrograms, alias string) []Program {
		for _, cp := range out {
			if cp.ChannelAlias == alias {
				return cp.Programs
			}
		}
		t.Fatalf("Channel %s missing from QueryAt output", alias)
		return nil
	}

	// On air mid-program: current first, then next.
	out := h.QueryAt(15, 2)
	if got := titles(find(out, "c1")); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Expected [a b] at t=15, got %v", got)
	}

	out = h.QueryAt(21, 2)
	if got := titles(find(out, "c1")); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("Expected [b c] at t=21, got %v", got)
	}

	// Before broadcasting starts: the upcoming programs.
	out = h.QueryAt(0, 1)
	if got := titles(find(out, "c1")); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Expected [a] at t=0, got %v", got)
	}

	// After the schedule ends: nothing.
	out = h.QueryAt(1000, 2)
	if got := find(out, "c1"); len(got) != 0 {
		t.Errorf("Expected no programs at t=1000, got %v", got)
	}

	// Never more than count per channel.
	out = h.QueryAt(0, 2)
	if got := find(out, "c1"); len(got) > 2 {
		t.Errorf("Expected at most 2 programs, got %d", len(got))
	}
}

func TestFailedRefreshKeepsServing(t *testing.T) {
	s := New()
	fillRefresh(t, s,
		map[string]string{"bbc1": "BBC One"},
		map[string][]Program{"bbc1": {{Begin: 1000, End: 2000, Title: "News"}}})

	// Second refresh fails mid-way; parser error surfaces as Abort.
	w, err := s.BeginRefresh()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.UpsertChannel("bbc1", "BBC One", ""); err != nil {
		t.Fatal(err)
	}
	w.Abort()

	h := s.Snapshot()
	defer h.Close()

	programs, err := h.QueryDay("bbc1", time.Unix(1000, 0).UTC())
	if err != nil {
		t.Fatal(err)
	}
	if len(programs) != 1 || programs[0].Title != "News" {
		t.Fatalf("Expected data from the first refresh after a failed second one, got %v", programs)
	}
}
