package http

import (
	"net/http"
	"time"

	"bemore/internal/core/domain"
	"bemore/internal/core/services"
	"bemore/internal/infrastructure/middleware"
	"bemore/internal/infrastructure/signal"
	apperrors "bemore/pkg/errors"
	"bemore/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionRecorder receives backend session metrics.
type SessionRecorder interface {
	RecordSessionStarted()
	RecordSessionEnded(duration time.Duration)
	RecordFeedback(rating int)
}

// BackendHandler serves the session API and the realtime channels of the
// reference backend.
type BackendHandler struct {
	registry *services.SessionRegistry
	channels *signal.ChannelServer
	auth     services.AuthService
	recorder SessionRecorder
	logger   *zap.SugaredLogger
}

func NewBackendHandler(
	registry *services.SessionRegistry,
	channels *signal.ChannelServer,
	auth services.AuthService,
	recorder SessionRecorder,
	logger *zap.SugaredLogger,
) *BackendHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &BackendHandler{
		registry: registry,
		channels: channels,
		auth:     auth,
		recorder: recorder,
		logger:   logger,
	}
}

func (h *BackendHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/session")
	{
		api.POST("/start", h.StartSession)

		// session details carry channel tokens, so reading them needs one
		api.GET("/:id", middleware.SessionTokenMiddleware(h.auth), h.GetSession)

		session := api.Group("/:id", middleware.OptionalSessionTokenMiddleware(h.auth))
		session.POST("/end", h.EndSession)
		session.POST("/status", h.SetStatus)
		session.POST("/feedback", h.SubmitFeedback)
	}

	router.GET("/ws/:channel", h.HandleChannel)
}

func (h *BackendHandler) StartSession(c *gin.Context) {
	var req struct {
		UserID      domain.UserID      `json:"userId"`
		CounselorID domain.CounselorID `json:"counselorId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateUserID(string(req.UserID)); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateCounselorID(string(req.CounselorID)); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	session, err := h.registry.Start(c.Request.Context(), req.UserID, req.CounselorID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if h.recorder != nil {
		h.recorder.RecordSessionStarted()
	}
	respondData(c, http.StatusOK, session)
}

func (h *BackendHandler) sessionID(c *gin.Context) (domain.SessionID, bool) {
	id := c.Param("id")
	if err := validation.ValidateSessionID(id); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return "", false
	}
	return domain.SessionID(id), true
}

func (h *BackendHandler) GetSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	session, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondData(c, http.StatusOK, session)
}

func (h *BackendHandler) EndSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	session, err := h.registry.End(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if h.recorder != nil {
		h.recorder.RecordSessionEnded(time.Since(session.StartedAt))
	}
	respondData(c, http.StatusOK, session)
}

// SetStatus pauses or resumes a session; the change is pushed on its session channel.
func (h *BackendHandler) SetStatus(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req struct {
		Status domain.SessionStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if req.Status != domain.SessionActive && req.Status != domain.SessionPaused {
		abortWithError(c, apperrors.NewInvalidInputError("status must be active or paused"))
		return
	}

	session, err := h.registry.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondData(c, http.StatusOK, session)
}

func (h *BackendHandler) SubmitFeedback(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req struct {
		Rating int    `json:"rating"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateRating(req.Rating); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateNote(req.Note); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	feedback := &domain.Feedback{SessionID: id, Rating: req.Rating, Note: req.Note}
	if err := h.registry.SubmitFeedback(c.Request.Context(), feedback); err != nil {
		abortWithError(c, err)
		return
	}
	if h.recorder != nil {
		h.recorder.RecordFeedback(req.Rating)
	}
	respondData(c, http.StatusOK, feedback)
}

func (h *BackendHandler) HandleChannel(c *gin.Context) {
	h.channels.HandleWebSocket(c.Writer, c.Request, domain.Channel(c.Param("channel")))
}
