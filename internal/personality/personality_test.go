package personality

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommands_AbsoluteForms(t *testing.T) {
	cmds := ParseCommands("set humor to 90%")
	require.Len(t, cmds, 1)
	assert.Equal(t, "humor_level", cmds[0].Field)
	assert.Equal(t, 0.9, cmds[0].Value)
	assert.True(t, cmds[0].Absolute)

	cmds = ParseCommands("turn sass down to 10")
	require.Len(t, cmds, 1)
	assert.Equal(t, "sass_level", cmds[0].Field)
	assert.Equal(t, 0.1, cmds[0].Value)

	cmds = ParseCommands("warmth at 75%")
	require.Len(t, cmds, 1)
	assert.Equal(t, "warmth_level", cmds[0].Field)
	assert.Equal(t, 0.75, cmds[0].Value)
}

func TestParseCommands_RelativeForms(t *testing.T) {
	cmds := ParseCommands("be more direct")
	require.Len(t, cmds, 1)
	assert.Equal(t, "directness_level", cmds[0].Field)
	assert.Equal(t, 0.2, cmds[0].Value)
	assert.False(t, cmds[0].Absolute)

	cmds = ParseCommands("dial down sass")
	require.Len(t, cmds, 1)
	assert.Equal(t, "sass_level", cmds[0].Field)
	assert.Equal(t, -0.2, cmds[0].Value)
}

func TestParseCommands_MultipleInOneMessage(t *testing.T) {
	cmds := ParseCommands("set humor to 80% and be less formal")
	require.Len(t, cmds, 2)
}

func TestParseCommands_UnknownTraitIgnored(t *testing.T) {
	assert.Empty(t, ParseCommands("set grumpiness to 50%"))
	assert.Empty(t, ParseCommands("just a normal message"))
}

func TestStore_ApplyClampsAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personality.json")
	s, err := Load(path)
	require.NoError(t, err)

	traits, err := s.Apply(Command{Field: "humor_level", Value: 0.9, Absolute: true})
	require.NoError(t, err)
	assert.Equal(t, 0.9, traits.HumorLevel)

	// Relative deltas clamp at the [0, 1] bounds.
	for i := 0; i < 3; i++ {
		traits, err = s.Apply(Command{Field: "humor_level", Value: 0.2})
		require.NoError(t, err)
	}
	assert.Equal(t, 1.0, traits.HumorLevel)

	// A fresh Load sees the persisted vector.
	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1.0, reloaded.Snapshot().HumorLevel)
}

func TestStore_ApplyUnknownFieldErrors(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "personality.json"))
	require.NoError(t, err)
	_, err = s.Apply(Command{Field: "nonexistent_level", Value: 0.5, Absolute: true})
	assert.Error(t, err)
}

func TestStore_LoadMissingFileStartsAtDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), s.Snapshot())
}

func TestStore_SetProfileNameRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personality.json")
	s, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, s.SetProfileName("Alice"))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Alice", reloaded.Profile().Name)
}

func TestAcknowledgmentPrompt(t *testing.T) {
	assert.Empty(t, AcknowledgmentPrompt(nil))

	cmds := ParseCommands("be more funny")
	out := AcknowledgmentPrompt(cmds)
	assert.Contains(t, out, "be more funny")
	assert.Contains(t, out, "acknowledge")
}
