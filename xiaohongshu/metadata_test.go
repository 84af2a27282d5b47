package xiaohongshu

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataWriterNeverOverwrites(t *testing.T) {
	w := NewMetadataWriter(t.TempDir())
	meta := &NoteMetadata{ID: "a", Timestamp: 42}

	path, err := w.Write(meta)
	require.NoError(t, err)

	_, err = w.Write(&NoteMetadata{ID: "b", Timestamp: 42})
	require.Error(t, err)

	got, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func TestMetadataFieldNames(t *testing.T) {
	w := NewMetadataWriter(t.TempDir())
	path, err := w.Write(&NoteMetadata{ID: "x", Stats: NoteStats{Likes: "1"}, Timestamp: 1})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"id", "url", "title", "author", "desc", "stats", "stats_count", "top_comments", "cover_url", "local_video_path", "timestamp"} {
		assert.Contains(t, fields, key)
	}

	var stats map[string]string
	require.NoError(t, json.Unmarshal(fields["stats"], &stats))
	assert.Equal(t, map[string]string{"likes": "1", "collects": "", "comments": ""}, stats)
}

func TestNextTimestamp(t *testing.T) {
	w := NewMetadataWriter(t.TempDir())
	now := time.UnixMilli(1000)
	w.now = func() time.Time { return now }

	assert.Equal(t, int64(1000), w.NextTimestamp())
	assert.Equal(t, int64(1001), w.NextTimestamp())

	now = time.UnixMilli(500)
	assert.Equal(t, int64(1002), w.NextTimestamp())

	now = time.UnixMilli(5000)
	assert.Equal(t, int64(5000), w.NextTimestamp())
}
