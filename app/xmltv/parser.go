package xmltv

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ErrMalformedFeed marks any structural problem in the XMLTV document.
// Callers match it with errors.Is.
var ErrMalformedFeed = errors.New("malformed XMLTV feed")

// timeLayout is the XMLTV native timestamp format, e.g. "20190324103000 +0300".
const timeLayout = "20060102150405 -0700"

type xmlChannel struct {
	ID          string   `xml:"id,attr"`
	DisplayName string   `xml:"display-name"`
	Icon        struct { // src attribute only, element may be absent
		Src string `xml:"src,attr"`
	} `xml:"icon"`
}

type xmlProgramme struct {
	Start       string `xml:"start,attr"`
	Stop        string `xml:"stop,attr"`
	Channel     string `xml:"channel,attr"`
	Title       string `xml:"title"`
	Description string `xml:"desc"`
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Run decodes an XMLTV document from r. It is a pure transform: no I/O
// beyond the reader, no assumptions about element order or sorting.
// Programs with an empty interval are dropped rather than failing the
// whole document.
func (p *Parser) Run(r io.Reader) (*Result, error) {
	decoder := xml.NewDecoder(r)
	result := &Result{}
	dropped := 0

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedFeed, err)
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "channel":
			var raw xmlChannel
			if err := decoder.DecodeElement(&raw, &start); err != nil {
				return nil, fmt.Errorf("%w: channel element: %s", ErrMalformedFeed, err)
			}
			if raw.ID == "" {
				return nil, fmt.Errorf("%w: channel element without id attribute", ErrMalformedFeed)
			}
			result.Channels = append(result.Channels, Channel{
				Alias:   raw.ID,
				Name:    raw.DisplayName,
				IconURL: raw.Icon.Src,
			})
		case "programme":
			var raw xmlProgramme
			if err := decoder.DecodeElement(&raw, &start); err != nil {
				return nil, fmt.Errorf("%w: programme element: %s", ErrMalformedFeed, err)
			}
			program, err := p.normalizeProgram(raw)
			if err != nil {
				return nil, err
			}
			if program.Begin >= program.End {
				dropped++
				continue
			}
			result.Programs = append(result.Programs, program)
		}
	}

	if dropped > 0 {
		slog.Warn("Dropped programs with empty interval", "count", dropped)
	}

	return result, nil
}

func (p *Parser) normalizeProgram(raw xmlProgramme) (Program, error) {
	if raw.Channel == "" {
		return Program{}, fmt.Errorf("%w: programme element without channel attribute", ErrMalformedFeed)
	}

	begin, err := parseTimestamp(raw.Start)
	if err != nil {
		return Program{}, fmt.Errorf("%w: programme start %q: %s", ErrMalformedFeed, raw.Start, err)
	}
	end, err := parseTimestamp(raw.Stop)
	if err != nil {
		return Program{}, fmt.Errorf("%w: programme stop %q: %s", ErrMalformedFeed, raw.Stop, err)
	}

	return Program{
		ChannelAlias: raw.Channel,
		Begin:        begin,
		End:          end,
		Title:        raw.Title,
		Description:  raw.Description,
	}, nil
}

func parseTimestamp(s string) (int64, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
