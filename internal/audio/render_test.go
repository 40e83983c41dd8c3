package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacer(t *testing.T) {
	// 80 frames at 8 kHz
	p := newPacer(10*time.Millisecond, 2*time.Millisecond)
	assert.Equal(t, 8*time.Millisecond, p.budget)
	assert.Equal(t, 5*time.Millisecond, p.remaining(3*time.Millisecond))

	p.underrun(3 * time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, p.budget)
	p.underrun(6 * time.Millisecond)
	p.underrun(6 * time.Millisecond)
	assert.Zero(t, p.budget, "budget never goes negative")
	assert.Negative(t, p.remaining(time.Millisecond))

	p.reset()
	assert.Equal(t, 8*time.Millisecond, p.budget)

	assert.Zero(t, newPacer(time.Millisecond, 2*time.Millisecond).budget)
}
