package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dkeye/RandomVoice/internal/adapters/rtc"
	"github.com/dkeye/RandomVoice/internal/adapters/signal"
	"github.com/dkeye/RandomVoice/internal/app/orch"
	"github.com/dkeye/RandomVoice/internal/config"
	"github.com/dkeye/RandomVoice/internal/domain"
	"github.com/dkeye/RandomVoice/internal/media"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

const (
	sessionName    = "RandomVoiceSessions"
	clientTokenKey = "client_token"
	userIDHeader   = "userId"
)

type Deps struct {
	Orch   *orch.Orchestrator
	Signal *signal.SignalWSController
	Media  media.Store
}

type message struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

var messages = []message{
	{ID: 1, Text: "Hi there!"},
	{ID: 2, Text: "Nice to meet you."},
	{ID: 3, Text: "Can you hear me?"},
	{ID: 4, Text: "Bye!"},
}

// ClientTokenMiddleware keeps a per-browser token in the session cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	r.GET(cfg.SocketPath, func(c *gin.Context) {
		id, err := connectIdentity(cfg, c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString(clientTokenKey)).Str("user", string(id)).Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(ctx, c, id)
	})

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(filepath.Join(cfg.StaticPath, "index.html"))
		})
		log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("serving static frontend")
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/message/all", func(c *gin.Context) {
		c.JSON(http.StatusOK, messages)
	})

	api := r.Group("/api")
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Orch.Rooms.List())
	})
	iceServers := rtc.ICEServers(cfg.ICEServers)
	api.GET("/ice-servers", func(c *gin.Context) {
		c.JSON(http.StatusOK, iceServers)
	})

	m := &mediaHandler{store: deps.Media, maxUpload: cfg.Media.MaxUploadBytes, background: cfg.Media.BackgroundPath}
	r.POST("/media", m.upload)
	r.GET("/media/all", m.list)
	r.GET("/media/bg", m.backgroundAudio)
	r.GET("/media/:name", m.get)

	log.Info().Str("module", "adapters.http").Str("socket_path", cfg.SocketPath).Str("identity_mode", cfg.IdentityMode).Msg("router setup")
	return r
}

// Handler wraps the router with the CORS allow-list. An empty list allows
// every origin.
func Handler(cfg *config.Config, r *gin.Engine) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", userIDHeader},
		AllowCredentials: true,
	}).Handler(r)
}

// connectIdentity is empty in login mode. In connect mode the userId header
// wins over the session token.
func connectIdentity(cfg *config.Config, c *gin.Context) (domain.UserID, error) {
	if cfg.IdentityMode != config.IdentityModeConnect {
		return "", nil
	}
	if raw := c.GetHeader(userIDHeader); raw != "" {
		return domain.ParseUserID(raw)
	}
	return domain.ParseUserID(c.GetString(clientTokenKey))
}

type mediaHandler struct {
	store      media.Store
	maxUpload  int64
	background string
}

func (h *mediaHandler) upload(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	name := c.PostForm("name")
	if name == "" {
		name = fh.Filename
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.store.Save(c.Request.Context(), name, data)
	switch {
	case errors.Is(err, media.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Str("name", name).Msg("media save")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}
	log.Info().Str("module", "adapters.http").Str("name", name).Int("bytes", len(data)).Msg("media stored")
	c.JSON(http.StatusOK, gin.H{"name": name})
}

func (h *mediaHandler) list(c *gin.Context) {
	names, err := h.store.ListNames(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("media list")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}
	c.JSON(http.StatusOK, names)
}

func (h *mediaHandler) get(c *gin.Context) {
	name := c.Param("name")
	data, err := h.store.Get(c.Request.Context(), name)
	switch {
	case errors.Is(err, media.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Str("name", name).Msg("media get")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

func (h *mediaHandler) backgroundAudio(c *gin.Context) {
	if h.background == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no background audio"})
		return
	}
	if _, err := os.Stat(h.background); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no background audio"})
		return
	}
	c.File(h.background)
}
