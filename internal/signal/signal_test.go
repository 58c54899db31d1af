package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect_StrongCorrection(t *testing.T) {
	s := Detect("No, that's wrong, the capital is Paris.")
	assert.Equal(t, TypeCorrection, s.Type)
	assert.Equal(t, ConfidenceStrongCorrection, s.Confidence)
}

func TestDetect_ModerateCorrection(t *testing.T) {
	s := Detect("the correct answer is actually 42")
	assert.Equal(t, TypeCorrection, s.Type)
	// "actually" is a strong-correction trigger too, so this also resolves strong.
	assert.Equal(t, ConfidenceStrongCorrection, s.Confidence)
}

func TestDetect_ModerateCorrectionOnly(t *testing.T) {
	s := Detect("it should be Thursday, not Wednesday")
	assert.Equal(t, TypeCorrection, s.Type)
	assert.Equal(t, ConfidenceModerateCorrection, s.Confidence)
}

func TestDetect_Confirmation(t *testing.T) {
	s := Detect("yes exactly, that's it")
	assert.Equal(t, TypeConfirmation, s.Type)
	assert.Equal(t, ConfidenceConfirmation, s.Confidence)
}

func TestDetect_ConfirmationRejectedByStrongCorrection(t *testing.T) {
	s := Detect("no, that's not right, but close")
	assert.Equal(t, TypeCorrection, s.Type)
}

func TestDetect_Frustration(t *testing.T) {
	s := Detect("this is useless, again?!")
	assert.Equal(t, TypeFrustration, s.Type)
	assert.Equal(t, ConfidenceFrustration, s.Confidence)
}

func TestDetect_None(t *testing.T) {
	s := Detect("can you help me write a function")
	assert.Equal(t, TypeNone, s.Type)
	assert.Zero(t, s.Confidence)
}

func TestExtractCorrectionTarget(t *testing.T) {
	cases := map[string]string{
		"actually it's Tuesday":         "Tuesday",
		"actually, Tuesday":             "Tuesday",
		"it's Tuesday.":                 "Tuesday",
		"should be Tuesday":             "Tuesday",
		"not Monday but Tuesday":        "Tuesday",
		"the correct day is Tuesday!":   "Tuesday",
		"I like turtles":                "",
	}
	for input, want := range cases {
		got := ExtractCorrectionTarget(input, "")
		assert.Equal(t, want, got, "input=%q", input)
	}
}
