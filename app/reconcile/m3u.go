package reconcile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	extM3U = "#EXTM3U"
	extInf = "#EXTINF:"
	extGrp = "#EXTGRP:"
)

var (
	ErrInvalidHeader = errors.New("invalid header")
	ErrExpectedInfo  = errors.New("expected #EXTINF")
	ErrExpectedURL   = errors.New("expected url")
	ErrRepeatedGroup = errors.New("repeated #EXTGRP")
	ErrInvalidURL    = errors.New("invalid url")
)

// ParseError reports a playlist syntax error with its line number.
type ParseError struct {
	Line int
	Kind error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at line %d", e.Kind, e.Line)
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

var (
	tvgIDRe      = regexp.MustCompile(`tvg-id="([^"]*)"`)
	tvgLogoRe    = regexp.MustCompile(`tvg-logo="([^"]*)"`)
	groupTitleRe = regexp.MustCompile(`group-title="([^"]*)"`)
)

// Entry is one playlist item: its EXTINF line, optional EXTGRP line and
// stream URL. The raw lines are kept verbatim so untouched entries round-
// trip byte for byte.
type Entry struct {
	URL   string
	info  string // full "#EXTINF:..." line
	group string // full "#EXTGRP:..." line, may be empty
}

// Name returns the display name after the EXTINF comma.
func (e *Entry) Name() string {
	_, name, ok := strings.Cut(e.info, ",")
	if !ok {
		return ""
	}
	return name
}

// attrs returns the EXTINF attribute section before the comma, without
// the "#EXTINF:" prefix.
func (e *Entry) attrs() string {
	attrs, _, _ := strings.Cut(e.info, ",")
	return strings.TrimPrefix(attrs, extInf)
}

// Group returns the EXTGRP group, falling back to the group-title
// attribute.
func (e *Entry) Group() string {
	if e.group != "" {
		return e.group[len(extGrp):]
	}
	if m := groupTitleRe.FindStringSubmatch(e.attrs()); m != nil {
		return m[1]
	}
	return ""
}

func (e *Entry) TvgID() string {
	if m := tvgIDRe.FindStringSubmatch(e.attrs()); m != nil {
		return m[1]
	}
	return ""
}

func (e *Entry) TvgLogo() string {
	if m := tvgLogoRe.FindStringSubmatch(e.attrs()); m != nil {
		return m[1]
	}
	return ""
}

// SetTvgID rewrites the tvg-id attribute in place, appending it when the
// entry has none.
func (e *Entry) SetTvgID(id string) {
	attrs := e.attrs()
	if loc := tvgIDRe.FindStringSubmatchIndex(attrs); loc != nil {
		e.info = extInf + attrs[:loc[2]] + id + attrs[loc[3]:] + "," + e.Name()
		return
	}
	e.info = fmt.Sprintf("%s%s tvg-id=%q,%s", extInf, attrs, id, e.Name())
}

func (e *Entry) writeTo(b *strings.Builder) {
	if e.group != "" {
		b.WriteString(e.group)
		b.WriteByte('\n')
	}
	b.WriteString(e.info)
	b.WriteByte('\n')
	b.WriteString(e.URL)
	b.WriteByte('\n')
}

// ParsePlaylist reads an extended M3U document. Blank lines are skipped;
// the first non-blank line must be the #EXTM3U header.
func ParsePlaylist(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Entry
	var current Entry
	line := 0
	header := false

	fail := func(kind error) ([]Entry, error) {
		return nil, &ParseError{Line: line, Kind: kind}
	}

	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), " \t\r")
		if text == "" {
			continue
		}

		if !header {
			if !strings.HasPrefix(text, extM3U) {
				return fail(ErrInvalidHeader)
			}
			header = true
			continue
		}

		switch {
		case strings.HasPrefix(text, extInf):
			if current.info != "" {
				return fail(ErrExpectedURL)
			}
			current.info = text
		case strings.HasPrefix(text, extGrp):
			if current.group != "" {
				return fail(ErrRepeatedGroup)
			}
			current.group = text
		default:
			if current.info == "" {
				return fail(ErrExpectedInfo)
			}
			if !strings.Contains(text, "://") {
				return fail(ErrInvalidURL)
			}
			current.URL = text
			entries = append(entries, current)
			current = Entry{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// PlaylistWriter accumulates entries into an extended M3U document.
type PlaylistWriter struct {
	b strings.Builder
}

func NewPlaylistWriter() *PlaylistWriter {
	w := &PlaylistWriter{}
	w.b.WriteString(extM3U)
	w.b.WriteByte('\n')
	return w
}

func (w *PlaylistWriter) Push(e Entry) {
	e.writeTo(&w.b)
}

func (w *PlaylistWriter) Bytes() []byte {
	return []byte(w.b.String())
}
