package api

import (
	"github.com/lysyi3m/epg-comb/app/config"
	"github.com/lysyi3m/epg-comb/app/database"
	"github.com/lysyi3m/epg-comb/app/store"
)

type Handler struct {
	store        *store.Store
	statusRepo   database.StatusRepository
	sourceConfig *config.SourceConfig
}

// ProgramJSON is the wire shape of a single program with its channel.
type ProgramJSON struct {
	ChannelAlias string `json:"channel_alias"`
	Begin        int64  `json:"begin"`
	End          int64  `json:"end"`
	Title        string `json:"title"`
	Description  string `json:"description"`
}

func toProgramJSON(alias string, programs []store.Program) []ProgramJSON {
	out := make([]ProgramJSON, 0, len(programs))
	for _, p := range programs {
		out = append(out, ProgramJSON{
			ChannelAlias: alias,
			Begin:        p.Begin,
			End:          p.End,
			Title:        p.Title,
			Description:  p.Description,
		})
	}
	return out
}
