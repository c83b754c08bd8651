package http

import (
	"io"
	"net/http"

	"bemore/internal/core/domain"
	"bemore/internal/core/ports"
	"bemore/internal/core/services"
	"bemore/internal/infrastructure/render"
	"bemore/internal/infrastructure/signal"
	apperrors "bemore/pkg/errors"
	"bemore/pkg/optimize"
	"bemore/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var pngBuffers = optimize.NewBufferPool(1 << 20)

// maxRenderMessageBytes bounds POST /api/overlay/messages bodies.
const maxRenderMessageBytes = 256 << 10

// OverlaySource supplies the last rendered overlay frame.
type OverlaySource interface {
	EncodePNG(w io.Writer) error
}

// RenderMailbox accepts decoded worker messages without blocking.
type RenderMailbox interface {
	TryPost(msg render.Message) bool
}

// AgentDeps are the components the local agent API exposes.
type AgentDeps struct {
	Sessions    *services.SessionService
	Feedback    *services.FeedbackForm
	Subtitles   *services.SubtitleService
	Idle        *services.IdleMonitor
	Aggregator  *services.StatusAggregator
	Status      ports.StatusSource
	Forwarder   *signal.LandmarkForwarder
	Overlay     OverlaySource
	Codec       *render.Codec
	Mailbox     RenderMailbox
	UserID      domain.UserID
	CounselorID domain.CounselorID
}

// StatusResponse is the combined view behind GET /api/status.
type StatusResponse struct {
	Connection domain.OverallStatus   `json:"connection"`
	Session    services.SessionState  `json:"session"`
	Idle       bool                   `json:"idle"`
	Feedback   services.FeedbackState `json:"feedback"`
}

type AgentHandler struct {
	deps   AgentDeps
	logger *zap.SugaredLogger
}

func NewAgentHandler(deps AgentDeps, logger *zap.SugaredLogger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AgentHandler{deps: deps, logger: logger}
}

func (h *AgentHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/status", h.GetStatus)
		api.GET("/overlay.png", h.GetOverlay)
		api.POST("/overlay/messages", h.PostRenderMessage)
		api.POST("/landmarks", h.PostLandmarks)
		api.POST("/activity", h.PostActivity)
		api.GET("/subtitles", h.GetSubtitles)

		api.POST("/session/start", h.StartSession)
		api.POST("/session/end", h.EndSession)
		api.GET("/session/resume", h.GetResumeCandidate)
		api.POST("/session/resume", h.ResumeSession)
		api.DELETE("/session/resume", h.DiscardSession)

		api.GET("/feedback", h.GetFeedback)
		api.POST("/feedback/rating", h.SetRating)
		api.POST("/feedback/note", h.SetNote)
		api.POST("/feedback/submit", h.SubmitFeedback)
		api.POST("/feedback/close", h.CloseFeedback)
	}
}

func (h *AgentHandler) GetStatus(c *gin.Context) {
	wsConnected, statuses := h.deps.Status.Snapshot()
	respondData(c, http.StatusOK, StatusResponse{
		Connection: h.deps.Aggregator.Aggregate(wsConnected, statuses),
		Session:    h.deps.Sessions.State(),
		Idle:       h.deps.Idle.Idle(),
		Feedback:   h.deps.Feedback.State(),
	})
}

func (h *AgentHandler) GetOverlay(c *gin.Context) {
	buf := pngBuffers.Get()
	defer pngBuffers.Put(buf)

	if err := h.deps.Overlay.EncodePNG(buf); err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// PostRenderMessage accepts a raw worker message ({"type":"init"|"draw",...})
// and posts it to the render worker.
func (h *AgentHandler) PostRenderMessage(c *gin.Context) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRenderMessageBytes))
	if err != nil {
		abortWithError(c, apperrors.NewInvalidInputError("failed to read body: "+err.Error()))
		return
	}

	msg, err := h.deps.Codec.Decode(data)
	if err != nil {
		h.logger.Debugw("Render message dropped", "error", err)
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if !h.deps.Mailbox.TryPost(msg) {
		abortWithError(c, apperrors.NewServiceUnavailableError("render mailbox full"))
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *AgentHandler) PostLandmarks(c *gin.Context) {
	var frame domain.LandmarkFrame
	if err := c.ShouldBindJSON(&frame); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := h.deps.Forwarder.Validate(&frame); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	h.deps.Idle.Touch()
	res := h.deps.Forwarder.Forward(c.Request.Context(), &frame)
	respondData(c, http.StatusAccepted, res)
}

func (h *AgentHandler) PostActivity(c *gin.Context) {
	h.deps.Idle.Touch()
	c.Status(http.StatusNoContent)
}

func (h *AgentHandler) GetSubtitles(c *gin.Context) {
	respondData(c, http.StatusOK, h.deps.Subtitles.Snapshot())
}

func (h *AgentHandler) StartSession(c *gin.Context) {
	var req struct {
		UserID      domain.UserID      `json:"userId"`
		CounselorID domain.CounselorID `json:"counselorId"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
			return
		}
	}
	if req.UserID == "" {
		req.UserID = h.deps.UserID
	}
	if req.CounselorID == "" {
		req.CounselorID = h.deps.CounselorID
	}
	if err := validation.ValidateUserID(string(req.UserID)); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateCounselorID(string(req.CounselorID)); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	h.deps.Idle.Touch()
	session, err := h.deps.Sessions.Start(c.Request.Context(), req.UserID, req.CounselorID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.deps.Subtitles.Reset()
	h.deps.Feedback.Close()
	respondData(c, http.StatusOK, session)
}

// EndSession ends the active session. The summary form is opened by the
// session's end hook.
func (h *AgentHandler) EndSession(c *gin.Context) {
	if err := h.deps.Sessions.End(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	respondData(c, http.StatusOK, h.deps.Sessions.State())
}

func (h *AgentHandler) GetResumeCandidate(c *gin.Context) {
	candidate, err := h.deps.Sessions.ResumeCandidate(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondData(c, http.StatusOK, candidate)
}

func (h *AgentHandler) ResumeSession(c *gin.Context) {
	session, err := h.deps.Sessions.Resume(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.deps.Idle.Touch()
	respondData(c, http.StatusOK, session)
}

func (h *AgentHandler) DiscardSession(c *gin.Context) {
	if err := h.deps.Sessions.Discard(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AgentHandler) GetFeedback(c *gin.Context) {
	respondData(c, http.StatusOK, h.deps.Feedback.State())
}

func (h *AgentHandler) SetRating(c *gin.Context) {
	var req struct {
		Rating int `json:"rating"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := h.deps.Feedback.SetRating(req.Rating); err != nil {
		abortWithError(c, err)
		return
	}
	respondData(c, http.StatusOK, h.deps.Feedback.State())
}

func (h *AgentHandler) SetNote(c *gin.Context) {
	var req struct {
		Note string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateNote(req.Note); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := h.deps.Feedback.SetNote(req.Note); err != nil {
		abortWithError(c, err)
		return
	}
	respondData(c, http.StatusOK, h.deps.Feedback.State())
}

func (h *AgentHandler) SubmitFeedback(c *gin.Context) {
	feedback, err := h.deps.Feedback.Submit(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondData(c, http.StatusOK, feedback)
}

func (h *AgentHandler) CloseFeedback(c *gin.Context) {
	h.deps.Feedback.Close()
	c.Status(http.StatusNoContent)
}
