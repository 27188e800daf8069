package metadata_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rohmanhakim/politebot/internal/metadata"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
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

func TestRecorder_RecordError(t *testing.T) {
	var buf bytes.Buffer
	rec := metadata.NewRecorder(zerolog.New(&buf))

	rec.RecordError(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"scheduler",
		"Scheduler.Request",
		metadata.CausePolicyDisallow,
		"blocked by robots.txt",
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, "https://example.com/a"),
		},
	)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "scheduler", lines[0]["package"])
	assert.Equal(t, "Scheduler.Request", lines[0]["action"])
	assert.Equal(t, "policy_disallow", lines[0]["cause"])
	assert.Equal(t, "https://example.com/a", lines[0]["url"])
	assert.Equal(t, "blocked by robots.txt", lines[0]["message"])
}

func TestRecorder_RecordError_UnknownIsError(t *testing.T) {
	var buf bytes.Buffer
	rec := metadata.NewRecorder(zerolog.New(&buf))

	rec.RecordError(time.Now(), "pkg", "act", metadata.CauseUnknown, "boom", nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "unknown", lines[0]["cause"])
}

func TestRecorder_RecordFetchAndRobots(t *testing.T) {
	var buf bytes.Buffer
	rec := metadata.NewRecorder(zerolog.New(&buf).Level(zerolog.DebugLevel))

	rec.RecordFetch("https://example.com/", 200, 15*time.Millisecond, "text/html", 0, true)
	rec.RecordRobots("https://example.com", 200, "abc123", 4, true)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "fetch", lines[0]["message"])
	assert.Equal(t, float64(200), lines[0]["http_status"])
	assert.Equal(t, true, lines[0]["from_cache"])

	assert.Equal(t, "robots.txt refreshed", lines[1]["message"])
	assert.Equal(t, "https://example.com", lines[1]["origin"])
	assert.Equal(t, "abc123", lines[1]["digest"])
	assert.Equal(t, float64(4), lines[1]["lines"])
}

func TestNoopSink(t *testing.T) {
	var sink metadata.MetadataSink = &metadata.NoopSink{}

	assert.NotPanics(t, func() {
		sink.RecordError(time.Now(), "p", "a", metadata.CauseUnknown, "e", nil)
		sink.RecordFetch("u", 200, 0, "", 0, false)
		sink.RecordRobots("o", 404, "", 0, false)
	})
}
