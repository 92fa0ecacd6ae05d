package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepBar(t *testing.T) {
	s := NewStepBar("mug/0", 4)
	assert.Equal(t, "mug/0   0% ▕    ▏ 0/4", s.String())

	s.Set(1)
	assert.Equal(t, "mug/0  25% ▕█   ▏ 1/4", s.String())

	s.Set(10)
	assert.Equal(t, "mug/0 100% ▕████▏ 4/4", s.String())

	s.Set(-3)
	assert.Equal(t, "mug/0   0% ▕    ▏ 0/4", s.String())
}

func TestStepBarFinish(t *testing.T) {
	s := NewStepBar("mug/0", 2)
	s.started = time.Now().Add(-90 * time.Second)
	s.Set(2)
	s.Finish("done")

	assert.Equal(t, "mug/0 100% ▕██▏ 2/2 done in 1m30s", s.String())
}
