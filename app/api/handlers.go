package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/epg-comb/app/config"
	"github.com/lysyi3m/epg-comb/app/database"
	"github.com/lysyi3m/epg-comb/app/reconcile"
	"github.com/lysyi3m/epg-comb/app/store"
)

// dayLayout is the /epg_day date format, e.g. "2023.07.03".
const dayLayout = "2006.01.02"

func NewHandler(programStore *store.Store, statusRepo database.StatusRepository,
	sourceConfig *config.SourceConfig) *Handler {
	return &Handler{
		store:        programStore,
		statusRepo:   statusRepo,
		sourceConfig: sourceConfig,
	}
}

func (h *Handler) GetEpgDay(c *gin.Context) {
	alias := c.Query("alias")
	if alias == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing alias parameter"})
		return
	}

	day, err := time.ParseInLocation(dayLayout, c.Query("day"), time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid day parameter, expected YYYY.MM.DD"})
		return
	}

	snapshot := h.store.Snapshot()
	defer snapshot.Close()

	programs, err := snapshot.QueryDay(alias, day)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown channel"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toProgramJSON(alias, programs)})
}

func (h *Handler) GetEpgList(c *gin.Context) {
	at := time.Now().UTC().Unix()
	if raw := c.Query("time"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time parameter"})
			return
		}
		at = parsed
	}

	var wanted map[string]bool
	if raw := c.Query("aliases"); raw != "" {
		wanted = make(map[string]bool)
		for _, alias := range strings.Split(raw, ",") {
			wanted[strings.TrimSpace(alias)] = true
		}
	}

	snapshot := h.store.Snapshot()
	defer snapshot.Close()

	out := snapshot.QueryAt(at, 2)
	if wanted != nil {
		filtered := make([]store.ChannelPrograms, 0, len(out))
		for _, cp := range out {
			if wanted[cp.ChannelAlias] {
				filtered = append(filtered, cp)
			}
		}
		out = filtered
	}

	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *Handler) GetEpgSlice(c *gin.Context) {
	from, errFrom := strconv.ParseInt(c.Query("from"), 10, 64)
	to, errTo := strconv.ParseInt(c.Query("to"), 10, 64)
	if errFrom != nil || errTo != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from/to parameters"})
		return
	}
	if from >= to {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Parameter from must precede to"})
		return
	}

	snapshot := h.store.Snapshot()
	defer snapshot.Close()

	c.JSON(http.StatusOK, gin.H{"data": snapshot.QuerySlice(from, to)})
}

func (h *Handler) GetChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.store.Channels()})
}

func (h *Handler) PostFind(c *gin.Context) {
	name := c.PostForm("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing name parameter"})
		return
	}

	reconciler := reconcile.New(h.store.Channels())
	c.JSON(http.StatusOK, gin.H{"data": reconciler.Suggest(name)})
}

func (h *Handler) PostUpload(c *gin.Context) {
	file, _, err := c.Request.FormFile("playlistFile")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing playlistFile"})
		return
	}
	defer file.Close()

	reconciler := reconcile.New(h.store.Channels())
	entries, err := reconciler.Process(file)
	if err != nil {
		slog.Error("Playlist processing failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{
			"name":    e.Name(),
			"group":   e.Group(),
			"url":     e.URL,
			"tvg_id":  e.TvgID(),
			"matched": e.Matched,
			"score":   e.Score,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *Handler) PostGetM3u(c *gin.Context) {
	file, _, err := c.Request.FormFile("playlistFile")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing playlistFile"})
		return
	}
	defer file.Close()

	corrections := make(map[string]string)
	if raw := c.PostForm("changes"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &corrections); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid changes parameter"})
			return
		}
	}

	reconciler := reconcile.New(h.store.Channels())
	playlist, err := reconciler.Export(file, corrections)
	if err != nil {
		slog.Error("Playlist export failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="playlist.m3u"`)
	c.Data(http.StatusOK, "application/mpegurl", playlist)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"channels":  len(h.store.Channels()),
		"source":    h.sourceConfig.Feed.Name,
	}

	if last, err := h.statusRepo.GetLastUpdate(); err == nil && last != nil {
		health["last_update"] = gin.H{
			"checked_at": last.CheckedAt.Format(time.RFC3339),
			"ok":         last.OK,
			"message":    last.Message,
		}
	}

	c.JSON(http.StatusOK, health)
}
