package store

import (
	"sort"
	"time"
)

// QueryDay returns every program intersecting the UTC day in start order.
// The alias must resolve in the catalog, stale channels included;
// otherwise ErrUnknownChannel.
func (h *ReadHandle) QueryDay(alias string, day time.Time) ([]Program, error) {
	if _, ok := h.store.ChannelByAlias(alias); !ok {
		return nil, ErrUnknownChannel
	}

	day = day.UTC()
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC).Unix()
	to := from + 24*60*60
	return h.queryRange(alias, from, to), nil
}

// QuerySlice returns, for every non-stale channel in catalog order, the
// programs intersecting [from, to). Channels without intersecting programs
// are included with an empty list so consumers can render a complete grid.
func (h *ReadHandle) QuerySlice(from, to int64) []ChannelPrograms {
	channels := h.store.Channels()

	out := make([]ChannelPrograms, 0, len(channels))
	for _, c := range channels {
		if c.Stale {
			continue
		}
		out = append(out, ChannelPrograms{
			ChannelAlias: c.Alias,
			Programs:     h.queryRange(c.Alias, from, to),
		})
	}
	return out
}

// QueryAt returns, per non-stale channel, up to count programs that are on
// air or upcoming at instant t: the current program first, then the next
// ones in start order.
func (h *ReadHandle) QueryAt(t int64, count int) []ChannelPrograms {
	channels := h.store.Channels()

	out := make([]ChannelPrograms, 0, len(channels))
	for _, c := range channels {
		if c.Stale {
			continue
		}
		out = append(out, ChannelPrograms{
			ChannelAlias: c.Alias,
			Programs:     h.queryAfter(c.Alias, t, count),
		})
	}
	return out
}

// queryRange collects programs with Begin < to && End > from. The slice is
// sorted by Begin and maxSpan bounds how far before from an overlapping
// program may start, so the scan is proportional to the result size plus a
// logarithmic search.
func (h *ReadHandle) queryRange(alias string, from, to int64) []Program {
	programs := h.gen.programs[alias]
	floor := from - h.gen.maxSpan[alias]
	lo := sort.Search(len(programs), func(i int) bool {
		return programs[i].Begin > floor
	})

	out := []Program{}
	for i := lo; i < len(programs) && programs[i].Begin < to; i++ {
		if programs[i].End > from {
			out = append(out, programs[i])
		}
	}
	return out
}

func (h *ReadHandle) queryAfter(alias string, t int64, count int) []Program {
	programs := h.gen.programs[alias]
	floor := t - h.gen.maxSpan[alias]
	lo := sort.Search(len(programs), func(i int) bool {
		return programs[i].Begin > floor
	})

	out := []Program{}
	for i := lo; i < len(programs) && len(out) < count; i++ {
		if programs[i].End > t {
			out = append(out, programs[i])
		}
	}
	return out
}
