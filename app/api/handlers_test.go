package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/epg-comb/app/config"
	"github.com/lysyi3m/epg-comb/app/database"
	"github.com/lysyi3m/epg-comb/app/store"
)

// MockStatusRepository implements a simple mock for testing
type MockStatusRepository struct {
	last *database.UpdateStatus
}

var _ database.StatusRepository = (*MockStatusRepository)(nil)

func (m *MockStatusRepository) GetLastUpdate() (*database.UpdateStatus, error) {
	return m.last, nil
}

func (m *MockStatusRepository) InsertUpdateStatus(status database.UpdateStatus) error {
	m.last = &status
	return nil
}

func testServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := store.New()
	w, err := s.BeginRefresh()
	if err != nil {
		t.Fatal(err)
	}
	channels := []struct{ alias, name string }{
		{"bbc1", "BBC One"},
		{"bbc2", "BBC Two"},
		{"cnn", "CNN International"},
	}
	for _, c := range channels {
		if err := w.UpsertChannel(c.alias, c.name, ""); err != nil {
			t.Fatal(err)
		}
	}
	base := time.Date(2023, 7, 3, 0, 0, 0, 0, time.UTC).Unix()
	programs := map[string][]store.Program{
		"bbc1": {
			{Begin: base + 3600, End: base + 7200, Title: "Breakfast"},
			{Begin: base + 7200, End: base + 10800, Title: "News"},
		},
		"cnn": {
			{Begin: base, End: base + 86400, Title: "Rolling News"},
		},
	}
	for alias, list := range programs {
		for _, p := range list {
			if err := w.Insert(alias, p); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	sourceConfig := &config.SourceConfig{Feed: config.FeedInfo{Name: "test-guide", URL: "http://example.com/guide.xmltv"}}
	statusRepo := &MockStatusRepository{last: &database.UpdateStatus{
		CheckedAt: time.Unix(base, 0).UTC(),
		OK:        true,
	}}

	handler := NewHandler(s, statusRepo, sourceConfig)
	return NewServer(handler)
}

func doRequest(t *testing.T, server *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestGetEpgDay(t *testing.T) {
	server := testServer(t)

	rec := doRequest(t, server, httptest.NewRequest("GET", "/epg_day?alias=bbc1&day=2023.07.03", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data []ProgramJSON `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("Expected 2 programs, got %d", len(resp.Data))
	}
	if resp.Data[0].Title != "Breakfast" || resp.Data[0].ChannelAlias != "bbc1" {
		t.Errorf("Expected first program Breakfast on bbc1, got %+v", resp.Data[0])
	}
}

func TestGetEpgDayErrors(t *testing.T) {
	server := testServer(t)

	rec := doRequest(t, server, httptest.NewRequest("GET", "/epg_day?alias=ghost&day=2023.07.03", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown channel, got %d", rec.Code)
	}

	rec = doRequest(t, server, httptest.NewRequest("GET", "/epg_day?alias=bbc1&day=03-07-2023", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad day format, got %d", rec.Code)
	}

	rec = doRequest(t, server, httptest.NewRequest("GET", "/epg_day?day=2023.07.03", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing alias, got %d", rec.Code)
	}
}

func TestGetEpgList(t *testing.T) {
	server := testServer(t)

	base := time.Date(2023, 7, 3, 0, 0, 0, 0, time.UTC).Unix()
	at := base + 4000 // during Breakfast

	rec := doRequest(t, server, httptest.NewRequest("GET",
		"/epg_list?time="+itoa(at), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Data []store.ChannelPrograms `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 3 {
		t.Fatalf("Expected all 3 channels, got %d", len(resp.Data))
	}
	if got := resp.Data[0].Programs; len(got) != 2 || got[0].Title != "Breakfast" || got[1].Title != "News" {
		t.Errorf("Expected now/next for bbc1, got %v", got)
	}

	// Alias filter narrows the response.
	rec = doRequest(t, server, httptest.NewRequest("GET",
		"/epg_list?time="+itoa(at)+"&aliases=cnn", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ChannelAlias != "cnn" {
		t.Errorf("Expected only cnn, got %v", resp.Data)
	}
}

func TestGetEpgSlice(t *testing.T) {
	server := testServer(t)

	base := time.Date(2023, 7, 3, 0, 0, 0, 0, time.UTC).Unix()
	rec := doRequest(t, server, httptest.NewRequest("GET",
		"/epg_slice?from="+itoa(base+3600)+"&to="+itoa(base+7200), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Data []store.ChannelPrograms `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 3 {
		t.Fatalf("Expected full grid, got %d channels", len(resp.Data))
	}
	if len(resp.Data[0].Programs) != 1 || resp.Data[0].Programs[0].Title != "Breakfast" {
		t.Errorf("Expected Breakfast in slice, got %v", resp.Data[0].Programs)
	}
	// bbc2 has no programs but still appears.
	if resp.Data[1].ChannelAlias != "bbc2" || len(resp.Data[1].Programs) != 0 {
		t.Errorf("Expected empty bbc2 entry, got %v", resp.Data[1])
	}

	rec = doRequest(t, server, httptest.NewRequest("GET", "/epg_slice?from=100&to=100", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty interval, got %d", rec.Code)
	}
	rec = doRequest(t, server, httptest.NewRequest("GET", "/epg_slice?from=abc&to=100", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-numeric bounds, got %d", rec.Code)
	}
}

func TestGetChannels(t *testing.T) {
	server := testServer(t)

	rec := doRequest(t, server, httptest.NewRequest("GET", "/channels", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Data []store.Channel `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 3 {
		t.Fatalf("Expected 3 channels, got %d", len(resp.Data))
	}
	if resp.Data[0].Alias != "bbc1" || resp.Data[0].Name != "BBC One" {
		t.Errorf("Expected catalog order starting with bbc1, got %v", resp.Data)
	}
}

func TestPostFind(t *testing.T) {
	server := testServer(t)

	form := url.Values{"name": {"BBC 1 HD"}}
	req := httptest.NewRequest("POST", "/m3u/find", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := doRequest(t, server, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data []struct {
			Alias string `json:"alias"`
			Name  string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].Alias != "bbc1" {
		t.Errorf("Expected bbc1 suggested first, got %v", resp.Data)
	}

	req = httptest.NewRequest("POST", "/m3u/find", nil)
	if rec := doRequest(t, server, req); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing name, got %d", rec.Code)
	}
}

func multipartPlaylist(t *testing.T, playlist string, changes string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("playlistFile", "playlist.m3u")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(playlist)); err != nil {
		t.Fatal(err)
	}
	if changes != "" {
		if err := w.WriteField("changes", changes); err != nil {
			t.Fatal(err)
		}
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestPostUpload(t *testing.T) {
	server := testServer(t)

	playlist := "#EXTM3U\n#EXTINF:0,CNN International\nhttp://example.com/cnn\n#EXTINF:0,Obscure Local TV\nhttp://example.com/other\n"
	body, contentType := multipartPlaylist(t, playlist, "")
	req := httptest.NewRequest("POST", "/m3u/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(t, server, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data []struct {
			Name    string  `json:"name"`
			TvgID   string  `json:"tvg_id"`
			Matched string  `json:"matched"`
			Score   float64 `json:"score"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(resp.Data))
	}
	if resp.Data[0].Matched != "cnn" || resp.Data[0].TvgID != "cnn" {
		t.Errorf("Expected confident match for CNN, got %+v", resp.Data[0])
	}
	if resp.Data[1].Matched != "" {
		t.Errorf("Expected no match for unrelated entry, got %+v", resp.Data[1])
	}
}

func TestPostGetM3u(t *testing.T) {
	server := testServer(t)

	playlist := "#EXTM3U\n#EXTINF:0,Some Channel\nhttp://example.com/1\n"
	body, contentType := multipartPlaylist(t, playlist, `{"Some Channel":"bbc1"}`)
	req := httptest.NewRequest("POST", "/m3u/get_m3u", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(t, server, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/mpegurl" {
		t.Errorf("Expected application/mpegurl, got '%s'", got)
	}
	if !strings.Contains(rec.Body.String(), `tvg-id="bbc1"`) {
		t.Errorf("Expected correction applied, got:\n%s", rec.Body.String())
	}

	// Malformed playlist surfaces the parse error.
	body, contentType = multipartPlaylist(t, "not a playlist\n", "")
	req = httptest.NewRequest("POST", "/m3u/get_m3u", body)
	req.Header.Set("Content-Type", contentType)
	if rec := doRequest(t, server, req); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed playlist, got %d", rec.Code)
	}
}

func TestGetHealth(t *testing.T) {
	server := testServer(t)

	rec := doRequest(t, server, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["channels"] != float64(3) {
		t.Errorf("Expected 3 channels in health, got %v", resp["channels"])
	}
	if resp["last_update"] == nil {
		t.Error("Expected last_update in health response")
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
