package tts

import (
	"fmt"

	"github.com/msvee3/Interview-prep/internal/voice"
)

// Provider names accepted by New.
const (
	ProviderDeepgram   = "deepgram"
	ProviderElevenLabs = "elevenlabs"
)

// Options selects and configures a speech synthesizer.
type Options struct {
	Provider          string
	DeepgramAPIKey    string
	DeepgramModel     string
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
}

// New returns the synthesizer for opts.Provider, or nil when its key is not set.
func New(opts Options) (voice.Synthesizer, error) {
	switch opts.Provider {
	case "", ProviderDeepgram:
		if opts.DeepgramAPIKey == "" {
			return nil, nil
		}
		return NewDeepgram(opts.DeepgramAPIKey, opts.DeepgramModel), nil
	case ProviderElevenLabs:
		if opts.ElevenLabsAPIKey == "" || opts.ElevenLabsVoiceID == "" {
			return nil, nil
		}
		return NewElevenLabs(opts.ElevenLabsAPIKey, opts.ElevenLabsVoiceID), nil
	}
	return nil, fmt.Errorf("tts: unknown provider %q", opts.Provider)
}
