package store

// Channel is a catalog entry. Alias is the stable public identity used by
// playlists and queries; the numeric ID is internal and may be reassigned
// when the catalog is rebuilt.
type Channel struct {
	ID      int64  `json:"-"`
	Alias   string `json:"alias"`
	Name    string `json:"name"`
	IconURL string `json:"icon_url"`
	Stale   bool   `json:"-"`
}

// Program is a half-open [Begin, End) interval in unix seconds.
type Program struct {
	Begin       int64  `json:"begin"`
	End         int64  `json:"end"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ChannelPrograms groups one channel's programs in a slice query response.
type ChannelPrograms struct {
	ChannelAlias string    `json:"channel_alias"`
	Programs     []Program `json:"programs"`
}
