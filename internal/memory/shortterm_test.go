package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortTerm_DropsOldestOnOverflow(t *testing.T) {
	s := NewShortTerm(2)
	s.Append("a", "A")
	s.Append("b", "B")
	s.Append("c", "C")

	turns := s.GetTurns()
	require.Len(t, turns, 2)
	assert.Equal(t, "b", turns[0].User)
	assert.Equal(t, "c", turns[1].User)
}

func TestShortTerm_GetMessagesAlternatesRoles(t *testing.T) {
	s := NewShortTerm(10)
	s.Append("hi", "hello")

	msgs := s.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "hello", msgs[1].Content)
}

func TestShortTerm_DefaultCapacity(t *testing.T) {
	s := NewShortTerm(0)
	assert.Equal(t, defaultShortTermCap, s.cap)
}

func TestShortTerm_LastAgentResponse(t *testing.T) {
	s := NewShortTerm(5)
	assert.Equal(t, "", s.LastAgentResponse())
	s.Append("q1", "a1")
	s.Append("q2", "a2")
	assert.Equal(t, "a2", s.LastAgentResponse())
}
