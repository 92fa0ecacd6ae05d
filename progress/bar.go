package progress

import (
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/ollama/turntable/format"
)

// Bar counts finished items out of a known total.
type Bar struct {
	mu sync.Mutex

	message  string
	maxValue int64
	value    int64

	started time.Time
	stopped time.Time
}

func NewBar(message string, maxValue int64) *Bar {
	b := &Bar{
		message:  message,
		maxValue: maxValue,
		started:  time.Now(),
	}
	if maxValue <= 0 {
		b.stopped = b.started
	}
	return b
}

// formatDuration limits the rendering of a time.Duration to 2 units
func formatDuration(d time.Duration) string {
	if d >= 100*time.Hour {
		return "99h+"
	}

	if d >= time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}

	return d.Round(time.Second).String()
}

func repeat(s string, n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(s, n)
}

func (b *Bar) String() string {
	termWidth, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil {
		termWidth = defaultTermWidth
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var pre, mid, suf strings.Builder

	if b.message != "" {
		fmt.Fprintf(&pre, "%s ", strings.TrimSpace(b.message))
	}

	fmt.Fprintf(&pre, "%3.0f%% ", math.Floor(b.percent()))
	fmt.Fprintf(&suf, "(%s/%s)", format.HumanNumber(uint64(b.value)), format.HumanNumber(uint64(b.maxValue)))

	if b.stopped.IsZero() && b.value > 0 {
		fmt.Fprintf(&suf, " [%s:%s]", formatDuration(time.Since(b.started)), formatDuration(b.remaining()))
	} else if !b.stopped.IsZero() {
		fmt.Fprintf(&suf, " [%s]", formatDuration(b.stopped.Sub(b.started)))
	}

	// 2 boundary characters and 1 space
	f := termWidth - pre.Len() - suf.Len() - 3
	n := int(float64(f) * b.percent() / 100)

	if f > 0 {
		mid.WriteString("▕")
		mid.WriteString(repeat("█", n))
		mid.WriteString(repeat(" ", f-n))
		mid.WriteString("▏ ")
	}

	return pre.String() + mid.String() + suf.String()
}

// Add advances the bar by n.
func (b *Bar) Add(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set(b.value + n)
}

func (b *Bar) Set(value int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set(value)
}

func (b *Bar) set(value int64) {
	b.value = max(0, min(value, b.maxValue))
	if b.value >= b.maxValue && b.stopped.IsZero() {
		b.stopped = time.Now()
	}
}

func (b *Bar) percent() float64 {
	if b.maxValue > 0 {
		return float64(b.value) / float64(b.maxValue) * 100
	}
	return 100
}

// remaining extrapolates the time left from the average pace so far.
func (b *Bar) remaining() time.Duration {
	if b.value <= 0 {
		return time.Duration(math.MaxInt64)
	}
	perItem := time.Since(b.started) / time.Duration(b.value)
	return perItem * time.Duration(b.maxValue-b.value)
}
