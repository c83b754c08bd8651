package services

import (
	"testing"

	"bemore/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func statuses(l, v, s domain.ChannelStatus) map[domain.Channel]domain.ChannelStatus {
	return map[domain.Channel]domain.ChannelStatus{
		domain.ChannelLandmarks: l,
		domain.ChannelVoice:     v,
		domain.ChannelSession:   s,
	}
}

const (
	up   = domain.ChannelConnected
	down = domain.ChannelDisconnected
)

func TestStatusAggregator_Aggregate(t *testing.T) {
	agg := NewStatusAggregator()

	tests := []struct {
		name        string
		wsConnected bool
		statuses    map[domain.Channel]domain.ChannelStatus
		wantStatus  domain.ConnectionState
		wantText    string
		wantColor   string
		wantCount   int
	}{
		{
			name:        "transport down overrides all connected",
			wsConnected: false,
			statuses:    statuses(up, up, up),
			wantStatus:  domain.StateDisconnected,
			wantText:    "Disconnected",
			wantColor:   "red",
			wantCount:   3,
		},
		{
			name:        "transport down with nothing connected",
			wsConnected: false,
			statuses:    statuses(down, down, down),
			wantStatus:  domain.StateDisconnected,
			wantText:    "Disconnected",
			wantColor:   "red",
		},
		{
			name:        "all connected",
			wsConnected: true,
			statuses:    statuses(up, up, up),
			wantStatus:  domain.StateConnected,
			wantText:    "Connected",
			wantColor:   "green",
			wantCount:   3,
		},
		{
			name:        "one connected",
			wsConnected: true,
			statuses:    statuses(down, up, down),
			wantStatus:  domain.StatePartial,
			wantText:    "Partial (1/3)",
			wantColor:   "yellow",
			wantCount:   1,
		},
		{
			name:        "two connected",
			wsConnected: true,
			statuses:    statuses(up, down, up),
			wantStatus:  domain.StatePartial,
			wantText:    "Partial (2/3)",
			wantColor:   "yellow",
			wantCount:   2,
		},
		{
			name:        "none connected",
			wsConnected: true,
			statuses:    statuses(down, down, down),
			wantStatus:  domain.StateDisconnected,
			wantText:    "Disconnected",
			wantColor:   "red",
		},
		{
			name:        "empty map",
			wsConnected: true,
			statuses:    map[domain.Channel]domain.ChannelStatus{},
			wantStatus:  domain.StateDisconnected,
			wantText:    "Disconnected",
			wantColor:   "red",
		},
		{
			name:        "nil map",
			wsConnected: true,
			wantStatus:  domain.StateDisconnected,
			wantText:    "Disconnected",
			wantColor:   "red",
		},
		{
			name:        "unknown values count as disconnected",
			wsConnected: true,
			statuses:    statuses("connecting", up, ""),
			wantStatus:  domain.StatePartial,
			wantText:    "Partial (1/3)",
			wantColor:   "yellow",
			wantCount:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := agg.Aggregate(tt.wsConnected, tt.statuses)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantText, got.StatusText)
			assert.Equal(t, tt.wantColor, got.StatusColor)
			assert.Equal(t, tt.wantCount, got.ConnectedChannels)
			assert.Equal(t, 3, got.TotalChannels)
			assert.Len(t, got.Details, 3)
		})
	}
}

func TestStatusAggregator_MissingKeyEqualsDisconnected(t *testing.T) {
	agg := NewStatusAggregator()

	missing := agg.Aggregate(true, map[domain.Channel]domain.ChannelStatus{
		domain.ChannelLandmarks: up,
		domain.ChannelVoice:     up,
	})
	explicit := agg.Aggregate(true, statuses(up, up, down))

	assert.Equal(t, explicit, missing)
	assert.Equal(t, down, missing.Details[domain.ChannelSession])
}

func TestStatusAggregator_IgnoresUntrackedChannels(t *testing.T) {
	agg := NewStatusAggregator()

	got := agg.Aggregate(true, map[domain.Channel]domain.ChannelStatus{
		"video": up,
	})
	assert.Equal(t, domain.StateDisconnected, got.Status)
	assert.NotContains(t, got.Details, domain.Channel("video"))
}

func TestStatusAggregator_DoesNotMutateInput(t *testing.T) {
	agg := NewStatusAggregator()
	in := map[domain.Channel]domain.ChannelStatus{domain.ChannelVoice: "weird"}

	agg.Aggregate(true, in)
	assert.Equal(t, map[domain.Channel]domain.ChannelStatus{domain.ChannelVoice: "weird"}, in)
}

func TestStatusAggregator_CustomChannelSet(t *testing.T) {
	agg := NewStatusAggregatorFor(domain.ChannelLandmarks, domain.ChannelVoice)

	got := agg.Aggregate(true, map[domain.Channel]domain.ChannelStatus{domain.ChannelVoice: up})
	assert.Equal(t, domain.StatePartial, got.Status)
	assert.Equal(t, "Partial (1/2)", got.StatusText)

	got = agg.Aggregate(true, map[domain.Channel]domain.ChannelStatus{
		domain.ChannelVoice:     up,
		domain.ChannelLandmarks: up,
	})
	assert.Equal(t, domain.StateConnected, got.Status)
}

func TestStatusAggregator_NoChannels(t *testing.T) {
	got := NewStatusAggregatorFor().Aggregate(true, nil)
	assert.Equal(t, domain.StateDisconnected, got.Status)
	assert.Equal(t, 0, got.TotalChannels)
}
