package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/adapters/signal"
	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/auth"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/domain"
)

const (
	sessionUserKey  = "username"
	sessionTokenKey = "session"
)

// RequestIDMiddleware tags every request with an id, reusing the caller's
// X-Request-ID when present.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

type handlers struct {
	orch *orch.Orchestrator
	ws   *signal.ChatWSController
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: int(cfg.SessionTTL.Seconds()), HttpOnly: true})
	r.Use(sessions.Sessions("RelaySessions", store))
	r.Use(RequestIDMiddleware())

	h := &handlers{
		orch: o,
		ws: signal.NewChatWSController(o, signal.Options{
			ReadLimit:      cfg.ReadLimit,
			PingPeriod:     cfg.PingPeriod,
			WriteTimeout:   cfg.WriteTimeout,
			SendBuffer:     cfg.SendBuffer,
			AllowedOrigins: cfg.AllowedOrigins,
		}),
	}

	api := r.Group("/api")
	api.GET("/session/:username", h.issueSession)
	api.GET("/messages/:room", h.history)
	api.POST("/send", h.send)
	api.GET("/rooms", h.listRooms)
	api.GET("/rooms/:room/options", h.getRoomOptions)
	api.POST("/rooms/:room/options", h.setRoomOptions)
	api.GET("/ws/chat/:room", func(c *gin.Context) { h.chat(ctx, c) })

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

func abort(c *gin.Context, status int, code string, err error) {
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("module", "adapters.http").Str("request_id", c.GetString("request_id")).
		Str("path", c.FullPath()).Int("status", status).Msg(code)
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}

func (h *handlers) issueSession(c *gin.Context) {
	id, err := domain.NewIdentity(c.Param("username"))
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_username", err)
		return
	}
	token, sess, err := h.orch.Auth.Issue(id)
	if err != nil {
		abort(c, http.StatusInternalServerError, "session_unavailable", err)
		return
	}

	s := sessions.Default(c)
	s.Set(sessionUserKey, string(id))
	s.Set(sessionTokenKey, token)
	if err := s.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("cookie session not saved")
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": token, "username": id, "expiresAt": sess.ExpiresAt})
}

func (h *handlers) history(c *gin.Context) {
	room, err := domain.NewRoomID(c.Param("room"))
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_room", err)
		return
	}
	msgs, err := h.orch.History(c.Request.Context(), room)
	if err != nil {
		abort(c, http.StatusServiceUnavailable, "history_unavailable", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

type sendRequest struct {
	SessionID string            `json:"sessionId" binding:"required"`
	RoomID    domain.FlexibleID `json:"roomId" binding:"required"`
}

// send accepts the same body as a websocket frame plus sessionId.
func (h *handlers) send(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 64<<10)
	var req sendRequest
	if err := c.ShouldBindBodyWithJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "malformed_frame", err)
		return
	}
	body := c.MustGet(gin.BodyBytesKey).([]byte)
	room, err := domain.NewRoomID(string(req.RoomID))
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_room", err)
		return
	}
	in, err := domain.DecodeFrame(body)
	if err != nil {
		abort(c, http.StatusBadRequest, orch.ErrorCode(err), err)
		return
	}
	switch in.(type) {
	case domain.ChatFrame, domain.PublicKeyFrame, domain.PrivateFrame:
	default:
		abort(c, http.StatusBadRequest, "unsupported_type", nil)
		return
	}

	id, err := h.orch.Submit(c.Request.Context(), req.SessionID, room, in)
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		abort(c, http.StatusUnauthorized, orch.ErrorCode(err), err)
	case errors.Is(err, orch.ErrRateLimited):
		abort(c, http.StatusTooManyRequests, orch.ErrorCode(err), err)
	case errors.Is(err, orch.ErrNotPersisted):
		abort(c, http.StatusServiceUnavailable, orch.ErrorCode(err), err)
	case err != nil:
		abort(c, http.StatusBadRequest, orch.ErrorCode(err), err)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "sent", "username": id, "roomId": room})
	}
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.ListRooms()})
}

func (h *handlers) getRoomOptions(c *gin.Context) {
	room, err := domain.NewRoomID(c.Param("room"))
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_room", err)
		return
	}
	opts, err := h.orch.GetRoomOptions(c.Request.Context(), room)
	if err != nil {
		abort(c, http.StatusServiceUnavailable, "invalid_room_configuration", err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

type roomOptionsRequest struct {
	Visibility          string `json:"visibility" binding:"required,oneof=public private"`
	MaxConnectionsPerIP int    `json:"maxConnectionsPerIp" binding:"omitempty,min=1,max=1000"`
}

func (h *handlers) setRoomOptions(c *gin.Context) {
	room, err := domain.NewRoomID(c.Param("room"))
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_room", err)
		return
	}
	var req roomOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_room_configuration", err)
		return
	}
	vis, err := domain.ParseVisibility(req.Visibility)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_room_configuration", err)
		return
	}
	opts, err := h.orch.SetRoomOptions(c.Request.Context(), domain.RoomOptions{
		RoomID:              room,
		Visibility:          vis,
		MaxConnectionsPerIP: req.MaxConnectionsPerIP,
	})
	switch {
	case errors.Is(err, app.ErrRoomConfig):
		abort(c, http.StatusBadRequest, "invalid_room_configuration", err)
	case err != nil:
		abort(c, http.StatusServiceUnavailable, "store_unavailable", err)
	default:
		c.JSON(http.StatusOK, opts)
	}
}

// chat admits a websocket. The token comes from the query, or from the
// cookie session when it was issued for the same username.
func (h *handlers) chat(ctx context.Context, c *gin.Context) {
	room, err := domain.NewRoomID(c.Param("room"))
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_room", err)
		return
	}
	username := c.Query("username")
	token := c.Query("session")
	if token == "" {
		s := sessions.Default(c)
		if u, _ := s.Get(sessionUserKey).(string); u == username {
			token, _ = s.Get(sessionTokenKey).(string)
		}
	}
	// an invalid username is refused by admission as invalid_session
	id, _ := domain.NewIdentity(username)
	log.Info().Str("module", "adapters.http").Str("request_id", c.GetString("request_id")).
		Str("room", string(room)).Str("user", string(id)).Msg("ws chat endpoint hit")
	h.ws.HandleChat(ctx, c, room, id, token)
}
