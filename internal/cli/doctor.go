package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/msvee3/Interview-prep/internal/audio"
	"github.com/msvee3/Interview-prep/internal/auth"
	"github.com/msvee3/Interview-prep/internal/config"
	"github.com/msvee3/Interview-prep/internal/output"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(os.Stdout)
			cfg := deps.Config
			ok := true

			f.SetupCheck("Backend", true, cfg.BackendURL)

			token, err := credentials(cfg).Token(context.Background())
			switch {
			case err != nil:
				f.SetupCheck("Credential", false, err.Error()+". Set INTERVIEW_TOKEN or --token-file")
				ok = false
			default:
				detail := auth.Preview(token)
				if exp, has := auth.ExpiresAt(token); has {
					detail += fmt.Sprintf(", expires %s", exp.Local().Format(time.RFC1123))
				}
				f.SetupCheck("Credential", true, detail)
			}

			if cfg.AssemblyAIKey != "" {
				f.SetupCheck("Speech recognition", true, "AssemblyAI configured")
			} else {
				f.SetupCheck("Speech recognition", false, "not set. Set ASSEMBLYAI_API_KEY for spoken answers")
				ok = false
			}
			if cfg.TTSReady() {
				f.SetupCheck("Speech synthesis", true, cfg.TTSProvider+" configured")
			} else {
				f.SetupCheck("Speech synthesis", false, cfg.TTSProvider+" key not set. Questions will not be spoken")
				ok = false
			}

			devices, err := audio.Probe()
			switch {
			case err != nil:
				f.SetupCheck("Audio devices", false, err.Error())
				ok = false
			default:
				f.SetupCheck("Microphone", len(devices.Capture) > 0, deviceList(devices.Capture))
				f.SetupCheck("Speaker", len(devices.Playback) > 0, deviceList(devices.Playback))
				ok = ok && len(devices.Capture) > 0 && len(devices.Playback) > 0
			}

			if cfg.ArchiveEnabled() {
				f.SetupCheck("Transcript archive", true, "Supabase bucket "+cfg.SupabaseBucket)
			} else {
				f.SetupCheck("Transcript archive", true, "disabled")
			}

			if cfg.File != "" {
				f.SetupCheck("Config file", true, cfg.File)
			} else {
				f.SetupCheck("Config file", true, "none, using environment ("+config.FilePath()+")")
			}

			if ok {
				f.Success("\nAll set. Run `interview start` to begin.")
			} else {
				f.Warning("\nSome checks failed. Typed interviews may still work.")
			}
			return nil
		},
	}
}

func deviceList(names []string) string {
	if len(names) == 0 {
		return "none found"
	}
	return strings.Join(names, ", ")
}
