package signal

import (
	"context"
	"time"

	"bemore/internal/core/domain"
	"bemore/internal/core/ports"
	"bemore/pkg/validation"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FrameSender is the upstream half of the landmarks channel.
type FrameSender interface {
	Send(channel domain.Channel, v interface{}) error
}

// ForwardResult says what happened to one pushed frame.
type ForwardResult struct {
	Rendered  bool   `json:"rendered"`
	Forwarded bool   `json:"forwarded"`
	Dropped   string `json:"dropped,omitempty"`
}

// LandmarkForwarder feeds detector frames to the overlay renderer and upstream
// on the landmarks channel. Frames arriving faster than maxFPS are dropped
// before either happens.
type LandmarkForwarder struct {
	sink     ports.FrameSink
	sender   FrameSender
	limiter  *rate.Limiter
	sessions func() *domain.SessionData
	dropped  func(reason string)
	logger   *zap.SugaredLogger
}

// NewLandmarkForwarder builds a forwarder. A maxFPS of zero disables throttling.
// sessions returns the active session, or nil when there is none.
func NewLandmarkForwarder(
	sink ports.FrameSink,
	sender FrameSender,
	maxFPS float64,
	sessions func() *domain.SessionData,
	logger *zap.SugaredLogger,
) *LandmarkForwarder {
	limit := rate.Inf
	if maxFPS > 0 {
		limit = rate.Limit(maxFPS)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LandmarkForwarder{
		sink:     sink,
		sender:   sender,
		limiter:  rate.NewLimiter(limit, 1),
		sessions: sessions,
		logger:   logger,
	}
}

// OnDrop registers fn to be told about throttled frames.
func (f *LandmarkForwarder) OnDrop(fn func(reason string)) {
	f.dropped = fn
}

// Validate rejects frames the renderer could not use at all.
func (f *LandmarkForwarder) Validate(frame *domain.LandmarkFrame) error {
	if err := validation.ValidateFrameSize(frame.Width, frame.Height); err != nil {
		return err
	}
	return validation.ValidatePointCount(len(frame.Points))
}

func (f *LandmarkForwarder) Forward(ctx context.Context, frame *domain.LandmarkFrame) ForwardResult {
	if !f.limiter.AllowN(time.Now(), 1) {
		if f.dropped != nil {
			f.dropped("throttled")
		}
		return ForwardResult{Dropped: "throttled"}
	}

	res := ForwardResult{Rendered: f.sink.PostDraw(frame.DrawRequest())}
	if !res.Rendered {
		res.Dropped = "mailbox_full"
	}

	session := f.sessions()
	if session == nil || f.sender == nil {
		return res
	}
	if frame.SessionID == "" {
		frame.SessionID = session.SessionID
	}
	if frame.Timestamp == 0 {
		frame.Timestamp = time.Now().UnixMilli()
	}

	msg := landmarkMessage{Type: "landmarks", LandmarkFrame: frame}
	if err := f.sender.Send(domain.ChannelLandmarks, msg); err != nil {
		f.logger.Debugw("Landmark frame not forwarded", "session_id", session.SessionID, "error", err)
		return res
	}
	res.Forwarded = true
	return res
}

type landmarkMessage struct {
	Type string `json:"type"`
	*domain.LandmarkFrame
}
