package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/msvee3/Interview-prep/internal/audio"
	"github.com/msvee3/Interview-prep/internal/interview"
	"github.com/msvee3/Interview-prep/internal/output"
)

func NewStartCmd(deps *Dependencies) *cobra.Command {
	d := deps.Config.Interview
	var (
		kind, subType, industry, role, difficulty string
		duration                                  int
		voiceOn                                   bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new mock interview",
		Long:  "Start a new mock interview in the terminal.\nType answers line by line, or use --voice to hear questions and answer out loud.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := interview.Config{
				Type:            interview.Type(kind),
				SubType:         interview.SubType(subType),
				Industry:        industry,
				Role:            role,
				Difficulty:      interview.Difficulty(difficulty),
				DurationMinutes: duration,
				VoiceEnabled:    voiceOn,
			}
			return runInterview(cmd.Context(), deps, cfg, "")
		},
	}

	cmd.Flags().StringVarP(&kind, "type", "t", d.Type, "Interview type: technical, behavioral, hr or case-study")
	cmd.Flags().StringVar(&subType, "sub-type", d.SubType, "Sub-type: dsa, system-design or star")
	cmd.Flags().StringVar(&industry, "industry", d.Industry, "Industry the interview targets")
	cmd.Flags().StringVarP(&role, "role", "r", d.Role, "Role the interview targets")
	cmd.Flags().StringVarP(&difficulty, "difficulty", "d", d.Difficulty, "Difficulty: entry, mid or senior")
	cmd.Flags().IntVar(&duration, "duration", d.DurationMinutes, "Interview length in minutes: 15, 30, 45 or 60")
	cmd.Flags().BoolVar(&voiceOn, "voice", d.Voice, "Speak questions and capture spoken answers")

	return cmd
}

func NewResumeCmd(deps *Dependencies) *cobra.Command {
	var voiceOn bool

	cmd := &cobra.Command{
		Use:   "resume <interview-id>",
		Short: "Continue an interview that is still in progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInterview(cmd.Context(), deps, interview.Config{VoiceEnabled: voiceOn}, args[0])
		},
	}

	cmd.Flags().BoolVar(&voiceOn, "voice", deps.Config.Interview.Voice, "Speak questions and capture spoken answers")

	return cmd
}

// runInterview starts or resumes one interview and drives it from the terminal.
func runInterview(ctx context.Context, deps *Dependencies, cfg interview.Config, resumeID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conf := deps.Config
	f := output.NewFormatter(os.Stdout)
	con := newConsole(f, os.Stdin, cfg.VoiceEnabled)

	opts := []interview.Option{
		interview.WithListener(con.listen),
		interview.WithArchiver(newArchiver(conf)),
		interview.WithRequestTimeout(conf.RequestTimeout),
	}
	if cfg.VoiceEnabled {
		if !conf.VoiceReady() {
			f.Warning("Voice keys are not fully configured; run `interview doctor` to see what is missing.")
		}
		mic := audio.NewMicrophone()
		defer mic.Close()
		spk, err := audio.NewSpeaker()
		if err != nil {
			f.Warning(fmt.Sprintf("Audio output unavailable: %v", err))
			opts = append(opts, interview.WithVoice(newVoice(conf, mic, nil)))
		} else {
			defer spk.Close()
			opts = append(opts, interview.WithVoice(newVoice(conf, mic, spk)))
		}
	}

	session := interview.NewSession(newGateway(conf, credentials(conf), nil), cfg, opts...)
	defer session.Close()
	con.session = session

	f.Info("Connecting to the interview backend...")
	var err error
	if resumeID != "" {
		err = session.Resume(ctx, resumeID)
	} else {
		err = session.Start(ctx)
	}
	if err != nil {
		return fmt.Errorf("starting interview: %w", err)
	}
	f.SessionStarted(session.View())

	return con.run(ctx)
}
