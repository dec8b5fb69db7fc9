package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultBackendURL     = "http://localhost:8000"
	DefaultHTTPAddress    = ":8080"
	DefaultRequestTimeout = 20 * time.Second
	DefaultTTSProvider    = "deepgram"
	DefaultBucket         = "interview-transcripts"
	DefaultICEServersJSON = `[{"urls":["stun:stun.l.google.com:19302"]}]`
)

// Config holds application configuration.
type Config struct {
	BackendURL     string
	Token          string
	TokenFile      string
	HTTPAddress    string
	RequestTimeout time.Duration

	AssemblyAIKey     string
	TTSProvider       string
	DeepgramKey       string
	DeepgramModel     string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	ICEServersJSON    string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string

	Interview InterviewDefaults

	// File is the config file that was read, if any.
	File string
}

// InterviewDefaults pre-fill the interview setup for the terminal client.
type InterviewDefaults struct {
	Type            string `toml:"type"`
	SubType         string `toml:"sub_type"`
	Industry        string `toml:"industry"`
	Role            string `toml:"role"`
	Difficulty      string `toml:"difficulty"`
	DurationMinutes int    `toml:"duration_minutes"`
	Voice           bool   `toml:"voice"`
}

type fileConfig struct {
	BackendURL     string `toml:"backend_url"`
	Token          string `toml:"token"`
	TokenFile      string `toml:"token_file"`
	HTTPAddress    string `toml:"http_address"`
	RequestTimeout string `toml:"request_timeout"`

	AssemblyAIKey     string `toml:"assemblyai_api_key"`
	TTSProvider       string `toml:"tts_provider"`
	DeepgramKey       string `toml:"deepgram_api_key"`
	DeepgramModel     string `toml:"deepgram_model"`
	ElevenLabsKey     string `toml:"elevenlabs_api_key"`
	ElevenLabsVoiceID string `toml:"elevenlabs_voice_id"`
	ICEServersJSON    string `toml:"ice_servers_json"`

	Supabase struct {
		URL            string `toml:"url"`
		ServiceRoleKey string `toml:"service_role_key"`
		Bucket         string `toml:"bucket"`
	} `toml:"supabase"`

	Interview InterviewDefaults `toml:"interview"`
}

func defaults() Config {
	return Config{
		BackendURL:     DefaultBackendURL,
		HTTPAddress:    DefaultHTTPAddress,
		RequestTimeout: DefaultRequestTimeout,
		TTSProvider:    DefaultTTSProvider,
		ICEServersJSON: DefaultICEServersJSON,
		SupabaseBucket: DefaultBucket,
		Interview: InterviewDefaults{
			Type:            "technical",
			Difficulty:      "mid",
			DurationMinutes: 30,
		},
	}
}

// Load reads .env, the optional config file and the environment, in rising
// order of precedence. Command-line flags are applied by the caller.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: loading .env: %v", err)
	}
	return load(FilePath())
}

func load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			var fc fileConfig
			if _, err := toml.DecodeFile(path, &fc); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
			if err := applyFile(&cfg, fc); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
			cfg.File = path
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	warnMissing(cfg)
	return cfg, nil
}

func applyFile(cfg *Config, fc fileConfig) error {
	setString(&cfg.BackendURL, fc.BackendURL)
	setString(&cfg.Token, fc.Token)
	setString(&cfg.TokenFile, expandTilde(fc.TokenFile))
	setString(&cfg.HTTPAddress, fc.HTTPAddress)
	if fc.RequestTimeout != "" {
		d, err := time.ParseDuration(fc.RequestTimeout)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	setString(&cfg.AssemblyAIKey, fc.AssemblyAIKey)
	setString(&cfg.TTSProvider, fc.TTSProvider)
	setString(&cfg.DeepgramKey, fc.DeepgramKey)
	setString(&cfg.DeepgramModel, fc.DeepgramModel)
	setString(&cfg.ElevenLabsKey, fc.ElevenLabsKey)
	setString(&cfg.ElevenLabsVoiceID, fc.ElevenLabsVoiceID)
	setString(&cfg.ICEServersJSON, fc.ICEServersJSON)
	setString(&cfg.SupabaseURL, fc.Supabase.URL)
	setString(&cfg.SupabaseServiceRoleKey, fc.Supabase.ServiceRoleKey)
	setString(&cfg.SupabaseBucket, fc.Supabase.Bucket)

	iv := fc.Interview
	setString(&cfg.Interview.Type, iv.Type)
	setString(&cfg.Interview.SubType, iv.SubType)
	setString(&cfg.Interview.Industry, iv.Industry)
	setString(&cfg.Interview.Role, iv.Role)
	setString(&cfg.Interview.Difficulty, iv.Difficulty)
	if iv.DurationMinutes != 0 {
		cfg.Interview.DurationMinutes = iv.DurationMinutes
	}
	cfg.Interview.Voice = cfg.Interview.Voice || iv.Voice
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.BackendURL, os.Getenv("INTERVIEW_BACKEND_URL"))
	setString(&cfg.Token, os.Getenv("INTERVIEW_TOKEN"))
	setString(&cfg.TokenFile, expandTilde(os.Getenv("INTERVIEW_TOKEN_FILE")))
	setString(&cfg.HTTPAddress, os.Getenv("HTTP_ADDRESS"))
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	setString(&cfg.AssemblyAIKey, os.Getenv("ASSEMBLYAI_API_KEY"))
	setString(&cfg.TTSProvider, os.Getenv("TTS_PROVIDER"))
	setString(&cfg.DeepgramKey, os.Getenv("DEEPGRAM_API_KEY"))
	setString(&cfg.DeepgramModel, os.Getenv("DEEPGRAM_MODEL"))
	setString(&cfg.ElevenLabsKey, os.Getenv("ELEVENLABS_API_KEY"))
	setString(&cfg.ElevenLabsVoiceID, os.Getenv("ELEVENLABS_VOICE_ID"))
	setString(&cfg.ICEServersJSON, os.Getenv("ICE_SERVERS_JSON"))
	setString(&cfg.SupabaseURL, os.Getenv("SUPABASE_URL"))
	setString(&cfg.SupabaseServiceRoleKey, os.Getenv("SUPABASE_SERVICE_ROLE_KEY"))
	setString(&cfg.SupabaseBucket, os.Getenv("SUPABASE_BUCKET"))

	setString(&cfg.Interview.Industry, os.Getenv("INTERVIEW_INDUSTRY"))
	setString(&cfg.Interview.Role, os.Getenv("INTERVIEW_ROLE"))
	setString(&cfg.Interview.Difficulty, os.Getenv("INTERVIEW_DIFFICULTY"))
	if v := os.Getenv("INTERVIEW_DURATION_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INTERVIEW_DURATION_MINUTES: %w", err)
		}
		cfg.Interview.DurationMinutes = n
	}
	return nil
}

func warnMissing(cfg Config) {
	if cfg.Token == "" && cfg.TokenFile == "" {
		log.Println("Warning: INTERVIEW_TOKEN not set - backend calls need a relayed or file credential")
	}
	if cfg.AssemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - voice answers will not work")
	}
	if !cfg.TTSReady() {
		log.Printf("Warning: %s TTS key not set - questions will not be spoken", cfg.TTSProvider)
	}
}

// TTSReady reports whether the selected synthesizer has its credentials.
func (c Config) TTSReady() bool {
	switch c.TTSProvider {
	case "elevenlabs":
		return c.ElevenLabsKey != "" && c.ElevenLabsVoiceID != ""
	default:
		return c.DeepgramKey != ""
	}
}

// VoiceReady reports whether both speech recognition and synthesis are configured.
func (c Config) VoiceReady() bool {
	return c.AssemblyAIKey != "" && c.TTSReady()
}

// ArchiveEnabled reports whether finished transcripts can be uploaded.
func (c Config) ArchiveEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceRoleKey != ""
}

// FilePath is $XDG_CONFIG_HOME/interview-coach/config.toml, falling back to ~/.config.
func FilePath() string {
	var dir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dir = filepath.Join(xdg, "interview-coach")
	} else if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".config", "interview-coach")
	} else {
		return ""
	}
	return filepath.Join(dir, "config.toml")
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func expandTilde(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
