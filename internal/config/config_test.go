package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"INTERVIEW_BACKEND_URL", "INTERVIEW_TOKEN", "INTERVIEW_TOKEN_FILE", "HTTP_ADDRESS",
		"REQUEST_TIMEOUT", "ASSEMBLYAI_API_KEY", "TTS_PROVIDER", "DEEPGRAM_API_KEY",
		"DEEPGRAM_MODEL", "ELEVENLABS_API_KEY", "ELEVENLABS_VOICE_ID", "ICE_SERVERS_JSON",
		"SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_BUCKET", "INTERVIEW_INDUSTRY",
		"INTERVIEW_ROLE", "INTERVIEW_DIFFICULTY", "INTERVIEW_DURATION_MINUTES",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	clearEnv(t)
	cfg, err := load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddress != DefaultHTTPAddress || cfg.BackendURL != DefaultBackendURL {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if cfg.ICEServersJSON == "" {
		t.Fatalf("expected default ice servers json")
	}
	if cfg.RequestTimeout != DefaultRequestTimeout || cfg.Interview.DurationMinutes != 30 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.VoiceReady() {
		t.Fatalf("voice must not be ready without keys")
	}
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
backend_url = "https://file.example"
http_address = ":9000"
request_timeout = "5s"
assemblyai_api_key = "aai"
deepgram_api_key = "dg"

[supabase]
url = "https://proj.supabase.co"
service_role_key = "srk"

[interview]
industry = "fintech"
role = "backend engineer"
duration_minutes = 45
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("INTERVIEW_BACKEND_URL", "https://env.example")
	t.Setenv("INTERVIEW_DURATION_MINUTES", "60")

	cfg, err := load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.File != path {
		t.Fatalf("expected file recorded, got %q", cfg.File)
	}
	if cfg.BackendURL != "https://env.example" {
		t.Fatalf("env must override file, got %q", cfg.BackendURL)
	}
	if cfg.HTTPAddress != ":9000" || cfg.RequestTimeout != 5*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Interview.Industry != "fintech" || cfg.Interview.DurationMinutes != 60 {
		t.Fatalf("unexpected interview defaults %+v", cfg.Interview)
	}
	if !cfg.VoiceReady() || !cfg.ArchiveEnabled() || cfg.SupabaseBucket != DefaultBucket {
		t.Fatalf("expected voice and archive ready: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("backend_url = "), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := load(path); err == nil {
		t.Fatalf("expected toml parse error")
	}
	t.Setenv("REQUEST_TIMEOUT", "soon")
	if _, err := load(""); err == nil {
		t.Fatalf("expected bad duration error")
	}
}

func TestTTSReady(t *testing.T) {
	c := Config{TTSProvider: "elevenlabs", ElevenLabsKey: "k"}
	if c.TTSReady() {
		t.Fatalf("elevenlabs needs a voice id")
	}
	c.ElevenLabsVoiceID = "v"
	if !c.TTSReady() {
		t.Fatalf("expected elevenlabs ready")
	}
}

func TestFilePath_UsesXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := FilePath(); got != "/tmp/xdg/interview-coach/config.toml" {
		t.Fatalf("unexpected path %q", got)
	}
}
