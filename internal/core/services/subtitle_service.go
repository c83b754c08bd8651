package services

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"bemore/internal/core/domain"

	"go.uber.org/zap"
)

const DefaultSubtitleHistory = 20

// voiceMessage is what the voice channel pushes for speech-to-text results.
type voiceMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Subtitles is the current caption view.
type Subtitles struct {
	Interim *domain.SubtitleLine  `json:"interim,omitempty"`
	Lines   []domain.SubtitleLine `json:"lines"`
}

// SubtitleService turns speech-to-text messages into captions: one interim line
// that is replaced as recognition progresses and a bounded history of final lines.
type SubtitleService struct {
	history int
	logger  *zap.SugaredLogger

	mu      sync.RWMutex
	interim *domain.SubtitleLine
	lines   []domain.SubtitleLine
}

func NewSubtitleService(history int, logger *zap.SugaredLogger) *SubtitleService {
	if history <= 0 {
		history = DefaultSubtitleHistory
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SubtitleService{history: history, logger: logger}
}

// HandleMessage consumes one raw voice channel message. Anything that is not an
// stt message is ignored.
func (s *SubtitleService) HandleMessage(data []byte) {
	var msg voiceMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debugw("Dropping malformed voice message", "error", err)
		return
	}
	if msg.Type != "stt" {
		return
	}
	s.Add(msg.Text, msg.Final)
}

func (s *SubtitleService) Add(text string, final bool) {
	text = strings.TrimSpace(text)
	line := domain.SubtitleLine{Text: text, Final: final, Timestamp: time.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !final {
		if text == "" {
			s.interim = nil
			return
		}
		s.interim = &line
		return
	}

	s.interim = nil
	if text == "" {
		return
	}
	s.lines = append(s.lines, line)
	if over := len(s.lines) - s.history; over > 0 {
		s.lines = append([]domain.SubtitleLine(nil), s.lines[over:]...)
	}
}

func (s *SubtitleService) Snapshot() Subtitles {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Subtitles{Lines: append([]domain.SubtitleLine{}, s.lines...)}
	if s.interim != nil {
		line := *s.interim
		out.Interim = &line
	}
	return out
}

// Reset drops all captions, e.g. when a session ends.
func (s *SubtitleService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interim = nil
	s.lines = nil
}
