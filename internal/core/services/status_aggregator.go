package services

import (
	"fmt"

	"bemore/internal/core/domain"
)

const (
	ColorConnected    = "green"
	ColorPartial      = "yellow"
	ColorDisconnected = "red"

	TextConnected    = "Connected"
	TextDisconnected = "Disconnected"
)

// StatusAggregator folds the transport flag and per-channel states into a single
// display status. It holds no state beyond the tracked channel list.
type StatusAggregator struct {
	channels []domain.Channel
}

func NewStatusAggregator() *StatusAggregator {
	return NewStatusAggregatorFor(domain.DefaultChannels...)
}

func NewStatusAggregatorFor(channels ...domain.Channel) *StatusAggregator {
	return &StatusAggregator{channels: append([]domain.Channel(nil), channels...)}
}

func (a *StatusAggregator) Channels() []domain.Channel {
	return append([]domain.Channel(nil), a.channels...)
}

// Aggregate is pure: a missing or unrecognised channel value counts as disconnected.
func (a *StatusAggregator) Aggregate(wsConnected bool, statuses map[domain.Channel]domain.ChannelStatus) domain.OverallStatus {
	total := len(a.channels)
	details := make(map[domain.Channel]domain.ChannelStatus, total)
	connected := 0
	for _, ch := range a.channels {
		st := statuses[ch].Normalize()
		details[ch] = st
		if st == domain.ChannelConnected {
			connected++
		}
	}

	out := domain.OverallStatus{
		Details:           details,
		ConnectedChannels: connected,
		TotalChannels:     total,
	}

	switch {
	case !wsConnected:
		out.Status = domain.StateDisconnected
	case connected == total && total > 0:
		out.Status = domain.StateConnected
	case connected > 0:
		out.Status = domain.StatePartial
	default:
		out.Status = domain.StateDisconnected
	}

	switch out.Status {
	case domain.StateConnected:
		out.StatusText, out.StatusColor = TextConnected, ColorConnected
	case domain.StatePartial:
		out.StatusText = fmt.Sprintf("Partial (%d/%d)", connected, total)
		out.StatusColor = ColorPartial
	default:
		out.StatusText, out.StatusColor = TextDisconnected, ColorDisconnected
	}

	return out
}
