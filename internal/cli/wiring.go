package cli

import (
	"log"

	"github.com/msvee3/Interview-prep/internal/archive"
	"github.com/msvee3/Interview-prep/internal/auth"
	"github.com/msvee3/Interview-prep/internal/backend"
	"github.com/msvee3/Interview-prep/internal/config"
	"github.com/msvee3/Interview-prep/internal/interview"
	"github.com/msvee3/Interview-prep/internal/transcript"
	"github.com/msvee3/Interview-prep/internal/tts"
	"github.com/msvee3/Interview-prep/internal/voice"
)

// credentials prefers an explicit token over the token file.
func credentials(cfg *config.Config) auth.Provider {
	var chain auth.Chain
	if cfg.Token != "" {
		chain = append(chain, auth.Static(cfg.Token))
	}
	if cfg.TokenFile != "" {
		chain = append(chain, auth.NewFile(cfg.TokenFile))
	}
	return chain
}

func newGateway(cfg *config.Config, provider auth.Provider, rec backend.Recorder) *backend.Client {
	c := backend.NewClient(cfg.BackendURL, provider, cfg.RequestTimeout)
	c.Recorder = rec
	return c
}

func newArchiver(cfg *config.Config) interview.Archiver {
	if !cfg.ArchiveEnabled() {
		return nil
	}
	store, err := archive.NewSupabase(archive.Config{
		URL:            cfg.SupabaseURL,
		ServiceRoleKey: cfg.SupabaseServiceRoleKey,
		Bucket:         cfg.SupabaseBucket,
	})
	if err != nil {
		log.Printf("archive disabled: %v", err)
		return nil
	}
	return store
}

func newSynthesizer(cfg *config.Config) voice.Synthesizer {
	synth, err := tts.New(tts.Options{
		Provider:          cfg.TTSProvider,
		DeepgramAPIKey:    cfg.DeepgramKey,
		DeepgramModel:     cfg.DeepgramModel,
		ElevenLabsAPIKey:  cfg.ElevenLabsKey,
		ElevenLabsVoiceID: cfg.ElevenLabsVoiceID,
	})
	if err != nil {
		log.Printf("speech synthesis disabled: %v", err)
		return nil
	}
	return synth
}

// newVoice composes the voice adapter from whatever is configured. Missing
// keys or devices leave the matching capability unsupported.
func newVoice(cfg *config.Config, src voice.AudioSource, sink voice.AudioSink) interview.Voice {
	var opts []voice.AdapterOption
	if cfg.AssemblyAIKey != "" && src != nil {
		opts = append(opts, voice.WithCapture(transcript.NewAssemblyAI(cfg.AssemblyAIKey), src))
	}
	if synth := newSynthesizer(cfg); synth != nil && sink != nil {
		opts = append(opts, voice.WithPlayback(synth, sink))
	}
	return voice.NewAdapter(opts...)
}
