package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bemore/internal/core/domain"

	"go.uber.org/zap"
)

type MessageType string

const (
	MessageInit MessageType = "init"
	MessageDraw MessageType = "draw"
)

// Message is one mailbox entry: init binds Surface, draw renders Draw.
type Message struct {
	Type    MessageType
	Surface Surface
	Draw    domain.DrawRequest
}

func InitMessage(s Surface) Message {
	return Message{Type: MessageInit, Surface: s}
}

func DrawMessage(req domain.DrawRequest) Message {
	return Message{Type: MessageDraw, Draw: req}
}

// Observer receives per-frame measurements from the worker.
type Observer interface {
	FrameRendered(duration time.Duration, points int)
	FrameDropped(reason string)
}

type nopObserver struct{}

func (nopObserver) FrameRendered(time.Duration, int) {}
func (nopObserver) FrameDropped(string)              {}

var ErrWorkerStopped = errors.New("render worker stopped")

// Worker owns a Renderer and processes its mailbox strictly in order on one
// goroutine. Posting is one-way; nothing is reported back to the sender.
type Worker struct {
	renderer *Renderer
	mailbox  chan Message
	observer Observer
	logger   *zap.SugaredLogger

	done     chan struct{}
	stopOnce sync.Once
}

func NewWorker(renderer *Renderer, mailboxSize int, observer Observer, logger *zap.SugaredLogger) *Worker {
	if renderer == nil {
		renderer = NewRenderer()
	}
	if mailboxSize <= 0 {
		mailboxSize = 1
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Worker{
		renderer: renderer,
		mailbox:  make(chan Message, mailboxSize),
		observer: observer,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Send enqueues msg, waiting for room in the mailbox.
func (w *Worker) Send(ctx context.Context, msg Message) error {
	select {
	case <-w.done:
		return ErrWorkerStopped
	default:
	}

	select {
	case w.mailbox <- msg:
		return nil
	case <-w.done:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPost enqueues msg without waiting. A false result means the message was not
// queued; for draw messages that is the stale-frame drop.
func (w *Worker) TryPost(msg Message) bool {
	select {
	case <-w.done:
		return false
	default:
	}

	select {
	case w.mailbox <- msg:
		return true
	default:
		if msg.Type == MessageDraw {
			w.observer.FrameDropped("mailbox_full")
		}
		return false
	}
}

// PostDraw implements ports.FrameSink.
func (w *Worker) PostDraw(req domain.DrawRequest) bool {
	return w.TryPost(DrawMessage(req))
}

// Run processes messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.mailbox:
			w.handle(msg)
		}
	}
}

func (w *Worker) stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// Done is closed once Run has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) handle(msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Errorw("render worker recovered from panic",
				"message_type", msg.Type,
				"panic", fmt.Sprint(rec),
			)
		}
	}()

	switch msg.Type {
	case MessageInit:
		w.renderer.Bind(msg.Surface)
		w.logger.Debugw("render surface bound", "bound", w.renderer.Bound())
	case MessageDraw:
		if !w.renderer.Bound() {
			w.observer.FrameDropped("unbound")
			return
		}
		start := time.Now()
		w.renderer.Draw(msg.Draw)
		w.observer.FrameRendered(time.Since(start), len(msg.Draw.Points))
	default:
		w.logger.Debugw("ignoring unknown render message", "message_type", msg.Type)
	}
}
