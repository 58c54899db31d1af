// Package stt declares the speech-to-text provider contract, the mirror
// of internal/llm/tts. The
// core ships only the interface and an Unconfigured stub; a real binding
// (Whisper, a cloud STT API) is an operator-wired adapter.
package stt

import (
	"context"
	"fmt"
)

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (text string, err error)
}

// Unconfigured is the default Transcriber.
type Unconfigured struct{}

func (Unconfigured) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return "", fmt.Errorf("stt: no transcriber configured")
}
