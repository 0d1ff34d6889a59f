package xmltv

type Channel struct {
	Alias   string
	Name    string
	IconURL string
}

type Program struct {
	ChannelAlias string
	Begin        int64
	End          int64
	Title        string
	Description  string
}

// Result holds the decoded contents of one XMLTV document. Channels and
// programs appear in document order; nothing is sorted here.
type Result struct {
	Channels []Channel
	Programs []Program
}
