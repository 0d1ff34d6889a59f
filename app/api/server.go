package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler) *gin.Engine {
	// Set Gin mode (can be controlled via GIN_MODE environment variable)
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Middleware
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS middleware for API endpoints
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Routes
	setupRoutes(r, handler)

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler) {
	// Guide endpoints
	r.GET("/epg_day", handler.GetEpgDay)
	r.GET("/epg_list", handler.GetEpgList)
	r.GET("/epg_slice", handler.GetEpgSlice)
	r.GET("/channels", handler.GetChannels)

	// Playlist reconciliation endpoints
	m3u := r.Group("/m3u")
	{
		m3u.POST("/find", handler.PostFind)
		m3u.POST("/upload", handler.PostUpload)
		m3u.POST("/get_m3u", handler.PostGetM3u)
	}

	// Health and status endpoints
	r.GET("/health", handler.GetHealth)

	// Root endpoint with basic information
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":     "EPG Comb",
			"description": "XMLTV guide proxy with channel reconciliation",
			"endpoints": map[string]string{
				"epg_day":   "/epg_day?alias=<alias>&day=YYYY.MM.DD",
				"epg_list":  "/epg_list?time=<unix>&aliases=a,b",
				"epg_slice": "/epg_slice?from=<unix>&to=<unix>",
				"channels":  "/channels",
				"find":      "/m3u/find (POST, form name)",
				"upload":    "/m3u/upload (POST, multipart playlistFile)",
				"get_m3u":   "/m3u/get_m3u (POST, multipart playlistFile + changes)",
				"health":    "/health",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}
