// Package tts declares the text-to-speech provider contract: a pluggable
// adapter whose interface is defined here but whose internals are not. No
// concrete vendor binding ships with the core; Unconfigured satisfies the
// interface so the HTTP API's voice endpoints have something to call
// before an operator wires a real synthesizer.
package tts

import (
	"context"
	"fmt"
)

// Synthesizer turns text into speech audio. A concrete implementation
// (ElevenLabs, a local Piper binary, cloud TTS) is an adapter an operator
// wires in; the core only depends on this narrow contract.
type Synthesizer interface {
	// Synthesize renders text as audio bytes in the given voice, returning
	// the audio's MIME type alongside the bytes.
	Synthesize(ctx context.Context, text, voice string) (audio []byte, mimeType string, err error)
}

// Unconfigured is the default Synthesizer: every call fails with a clear
// message rather than the HTTP API silently no-op'ing.
type Unconfigured struct{}

func (Unconfigured) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	return nil, "", fmt.Errorf("tts: no synthesizer configured")
}
