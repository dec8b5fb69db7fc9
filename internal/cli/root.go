package cli

import (
	"github.com/spf13/cobra"

	"github.com/msvee3/Interview-prep/internal/config"
	"github.com/msvee3/Interview-prep/internal/version"
)

type Dependencies struct {
	Config *config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "interview",
		Short:         "Practice mock interviews with live feedback",
		Long:          "A mock-interview client: answer questions by typing or speaking, see live delivery metrics, and get scored by the interview backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	cfg := deps.Config
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.BackendURL, "backend-url", cfg.BackendURL, "Interview backend base URL")
	flags.StringVar(&cfg.Token, "token", cfg.Token, "Bearer token for the backend")
	flags.StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "File holding the bearer token, re-read when it changes")
	flags.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "Timeout for each backend request")

	rootCmd.AddCommand(NewStartCmd(deps))
	rootCmd.AddCommand(NewResumeCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}
