package render

import (
	"encoding/json"
	"fmt"
	"sync"

	"bemore/internal/core/domain"
	"bemore/pkg/validation"
)

// wireMessage is the JSON form of a worker message. An init message names a
// registered surface instead of carrying it.
type wireMessage struct {
	Type   MessageType               `json:"type"`
	Canvas string                    `json:"canvas,omitempty"`
	Width  int                       `json:"width,omitempty"`
	Height int                       `json:"height,omitempty"`
	Points []*domain.NormalizedPoint `json:"points,omitempty"`
}

// Codec translates JSON worker messages, resolving canvas names through a registry.
type Codec struct {
	mu       sync.RWMutex
	surfaces map[string]Surface
}

func NewCodec() *Codec {
	return &Codec{surfaces: make(map[string]Surface)}
}

// Register makes s addressable by name from init messages.
func (c *Codec) Register(name string, s Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surfaces[name] = s
}

func (c *Codec) Decode(data []byte) (Message, error) {
	var wm wireMessage
	if err := json.Unmarshal(data, &wm); err != nil {
		return Message{}, fmt.Errorf("failed to decode render message: %w", err)
	}

	switch wm.Type {
	case MessageInit:
		c.mu.RLock()
		s := c.surfaces[wm.Canvas]
		c.mu.RUnlock()
		// an unknown canvas still yields an init: binding nil leaves the worker unbound
		return InitMessage(s), nil
	case MessageDraw:
		// non-positive sizes reach the renderer, which skips them
		if wm.Width > validation.MaxFrameDimension || wm.Height > validation.MaxFrameDimension {
			return Message{}, fmt.Errorf("frame size %dx%d exceeds %d", wm.Width, wm.Height, validation.MaxFrameDimension)
		}
		if err := validation.ValidatePointCount(len(wm.Points)); err != nil {
			return Message{}, err
		}
		return DrawMessage(domain.DrawRequest{
			Width:  wm.Width,
			Height: wm.Height,
			Points: wm.Points,
		}), nil
	default:
		return Message{}, fmt.Errorf("unknown render message type %q", wm.Type)
	}
}

// EncodeDraw renders a draw request in wire form.
func EncodeDraw(req domain.DrawRequest) ([]byte, error) {
	return json.Marshal(wireMessage{
		Type:   MessageDraw,
		Width:  req.Width,
		Height: req.Height,
		Points: req.Points,
	})
}
