package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, data string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestZerologSink_Levels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewZerologSink(zerolog.New(&buf).Level(zerolog.DebugLevel))

	sink.Record(SessionLaunched, Fields{"headless": true})
	sink.Record(StateWriteFailed, Fields{"err": errors.New("disk full"), "path": "/tmp/state.json"})

	lines := decodeLines(t, buf.String())
	require.Len(t, lines, 2)

	assert.Equal(t, "debug", lines[0]["level"])
	assert.Equal(t, SessionLaunched, lines[0]["event"])
	assert.Equal(t, true, lines[0]["headless"])

	assert.Equal(t, "warn", lines[1]["level"])
	assert.Equal(t, "disk full", lines[1]["error"])
	assert.Equal(t, "/tmp/state.json", lines[1]["path"])
}

func TestFileSink_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rednote.log")
	sink := NewFileSink(path, FileOptions{})

	sink.Record(SearchStarted, Fields{"keywords": "coffee", "limit": 2})
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := decodeLines(t, string(data))
	require.Len(t, lines, 1)
	assert.Equal(t, "coffee", lines[0]["keywords"])
	assert.EqualValues(t, 2, lines[0]["limit"])
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	fields := Fields{"url": "https://x"}
	sink := Multi{a, nil, b, Nop{}}

	sink.Record(SearchItemVisited, fields)
	sink.Record(SearchItemVisited, nil)
	sink.Record(SearchCompleted, nil)
	fields["url"] = "mutated"

	for _, r := range []*Recorder{a, b} {
		assert.Equal(t, 2, r.Count(SearchItemVisited))
		assert.Equal(t, []string{SearchItemVisited, SearchItemVisited, SearchCompleted}, r.Names())
		assert.Equal(t, "https://x", r.Events[0].Fields["url"])
	}
}
