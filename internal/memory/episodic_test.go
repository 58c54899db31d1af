package memory

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpisodic_RangeFiltersBySessionTypeAndWindow(t *testing.T) {
	e := NewEpisodic()
	require.NoError(t, e.Append("s1", "turn", "coding", map[string]string{"k": "v"}, 0.2))
	require.NoError(t, e.Append("s2", "turn", "general", map[string]string{"k": "v2"}, 0.3))
	require.NoError(t, e.Append("s1", "reflection", "coding", map[string]string{"k": "v3"}, 0.9))

	now := time.Now()
	got := e.Range("s1", "turn", now.Add(-time.Hour), now.Add(time.Hour))
	require.Len(t, got, 1)
	assert.Equal(t, "turn", got[0].EventType)
}

func TestEpisodic_RecentReturnsNewestFirst(t *testing.T) {
	e := NewEpisodic()
	require.NoError(t, e.Append("s1", "turn", "general", "first", 0))
	require.NoError(t, e.Append("s1", "turn", "general", "second", 0))

	recent := e.Recent(10)
	require.Len(t, recent, 2)
	assert.Contains(t, string(recent[0].ContentJSON), "second")
}

func TestEpisodic_SaveLoadRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "episodic-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	e := NewEpisodic()
	require.NoError(t, e.Append("s1", "turn", "coding", "hello", 0.5))
	require.NoError(t, e.Save(dir))

	loaded, err := Load(context.Background(), dir)
	require.NoError(t, err)
	recent := loaded.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, "s1", recent[0].SessionID)
}

func TestEpisodic_LoadMissingFileReturnsEmpty(t *testing.T) {
	dir, err := os.MkdirTemp("", "episodic-test-empty")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	loaded, err := Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, loaded.Recent(10))
}
