package domain

type Channel string

const (
	ChannelLandmarks Channel = "landmarks"
	ChannelVoice     Channel = "voice"
	ChannelSession   Channel = "session"
)

// DefaultChannels is the fixed channel set a session opens.
var DefaultChannels = []Channel{ChannelLandmarks, ChannelVoice, ChannelSession}

func (c Channel) Valid() bool {
	switch c {
	case ChannelLandmarks, ChannelVoice, ChannelSession:
		return true
	}
	return false
}

type ChannelStatus string

const (
	ChannelConnected    ChannelStatus = "connected"
	ChannelDisconnected ChannelStatus = "disconnected"
)

// Normalize folds every value other than connected into disconnected.
func (s ChannelStatus) Normalize() ChannelStatus {
	if s == ChannelConnected {
		return ChannelConnected
	}
	return ChannelDisconnected
}

type ConnectionState string

const (
	StateConnected    ConnectionState = "connected"
	StatePartial      ConnectionState = "partial"
	StateDisconnected ConnectionState = "disconnected"
)

// OverallStatus is the display projection of the transport flag and the channel states.
type OverallStatus struct {
	Status            ConnectionState           `json:"status"`
	StatusText        string                    `json:"statusText"`
	StatusColor       string                    `json:"statusColor"`
	Details           map[Channel]ChannelStatus `json:"details"`
	ConnectedChannels int                       `json:"connectedChannels"`
	TotalChannels     int                       `json:"totalChannels"`
}
