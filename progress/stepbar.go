package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// StepBar displays step-based progress of one item. It is safe to update
// from a goroutine other than the renderer.
type StepBar struct {
	mu sync.Mutex

	message string
	current int
	total   int
	status  string

	started time.Time
	elapsed time.Duration
}

func NewStepBar(message string, total int) *StepBar {
	return &StepBar{message: message, total: total, started: time.Now()}
}

func (s *StepBar) Set(current int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = max(0, min(current, s.total))
}

// Finish freezes the bar with a closing status such as "done" or "failed".
func (s *StepBar) Finish(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.elapsed = time.Since(s.started)
}

func (s *StepBar) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var percent float64
	if s.total > 0 {
		percent = float64(s.current) / float64(s.total) * 100
	}

	// "mug/0   34% ▕████████            ▏ 12/35"
	line := fmt.Sprintf("%s %3.0f%% ▕%s%s▏ %d/%d",
		s.message, percent,
		strings.Repeat("█", s.current), strings.Repeat(" ", s.total-s.current),
		s.current, s.total)

	if s.status != "" {
		line += fmt.Sprintf(" %s in %s", s.status, formatDuration(s.elapsed))
	}
	return line
}
