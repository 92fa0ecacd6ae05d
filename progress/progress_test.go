package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockState struct {
	value string
}

func (m *mockState) String() string {
	return m.value
}

// syncBuffer guards a buffer written by the renderer and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressStop(t *testing.T) {
	var buf syncBuffer
	p := NewProgress(&buf)

	assert.True(t, p.Stop())
	assert.False(t, p.Stop())
	assert.Contains(t, buf.String(), "\033[?25h")
}

func TestProgressRender(t *testing.T) {
	var buf syncBuffer
	p := NewProgress(&buf)

	p.Add("mug", &mockState{value: "mug output"})
	p.Add("bowl", &mockState{value: "bowl output"})

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "bowl output")
	}, 2*time.Second, 20*time.Millisecond)

	p.Stop()
	out := buf.String()
	assert.Contains(t, out, "mug output")
	assert.Less(t, strings.Index(out, "mug output"), strings.Index(out, "bowl output"))
}

func TestProgressStopAndClear(t *testing.T) {
	var buf syncBuffer
	p := NewProgress(&buf)
	p.Add("key", &mockState{value: "line"})

	assert.True(t, p.StopAndClear())
	assert.Contains(t, buf.String(), "\033[2K")
	assert.False(t, p.StopAndClear())
}

func TestProgressStopsSpinners(t *testing.T) {
	var buf syncBuffer
	p := NewProgress(&buf)

	s := NewSpinner("loading")
	p.Add("spinner", s)
	assert.False(t, s.isStopped())

	p.Stop()
	assert.True(t, s.isStopped())
}

func TestProgressConcurrentAdd(t *testing.T) {
	var buf syncBuffer
	p := NewProgress(&buf)
	defer p.Stop()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bar := NewStepBar("item", 35)
			p.Add("item", bar)
			for step := range 35 {
				bar.Set(step + 1)
			}
			bar.Finish("done")
		}()
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Len(t, p.states, 10)
}

func TestStateInterface(t *testing.T) {
	var _ State = &Bar{}
	var _ State = &Spinner{}
	var _ State = &StepBar{}
}
