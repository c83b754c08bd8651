package domain

// NormalizedPoint is a landmark position expressed as a fraction of the frame size.
type NormalizedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DrawRequest carries one landmark frame. Point order is significant: a nil entry
// keeps its slot so that outline indices still line up.
type DrawRequest struct {
	Width  int                `json:"width"`
	Height int                `json:"height"`
	Points []*NormalizedPoint `json:"points"`
}

// LandmarkFrame is what a detector pushes for one video frame.
type LandmarkFrame struct {
	SessionID SessionID          `json:"session_id,omitempty"`
	Timestamp int64              `json:"timestamp"`
	Width     int                `json:"width"`
	Height    int                `json:"height"`
	Points    []*NormalizedPoint `json:"points"`
}

func (f *LandmarkFrame) DrawRequest() DrawRequest {
	return DrawRequest{Width: f.Width, Height: f.Height, Points: f.Points}
}
