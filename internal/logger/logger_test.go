package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_FieldsAndLevels(t *testing.T) {
	l := &Logger{}
	l.initialize(Config{Level: "info"})

	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.Debug("hidden")
	l.Info("device opened", String("device", "hw:0"), Int("rate", 44100))
	l.Warn("underrun", Error(errors.New("xrun")))

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "device opened", got[0]["message"])
	assert.Equal(t, "hw:0", got[0]["device"])
	assert.Equal(t, float64(44100), got[0]["rate"])
	assert.Equal(t, "warn", got[1]["level"])
	assert.Equal(t, "xrun", got[1]["error"])

	require.NoError(t, l.SetLevel("debug"))
	assert.Equal(t, "debug", l.GetLevel())
	buf.Reset()
	l.Debug("shown")
	assert.Len(t, lines(t, &buf), 1)

	assert.Error(t, l.SetLevel("loud"))
}

func TestLogger_With(t *testing.T) {
	l := &Logger{}
	l.initialize(Config{Level: "debug"})

	var buf bytes.Buffer
	l.SetOutput(&buf)

	child := l.With(String("session", "abc"), Error(errors.New("boom")))
	child.Info("render started", Int("frame_size", 512))

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0]["session"])
	assert.Equal(t, "boom", got[0]["error"])
	assert.Equal(t, float64(512), got[0]["frame_size"])
}

func TestLogger_PanicPanics(t *testing.T) {
	l := &Logger{}
	l.initialize(Config{Level: "info"})
	l.SetOutput(&bytes.Buffer{})

	assert.PanicsWithValue(t, "bad state", func() { l.Panic("bad state") })
}
