package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/msvee3/Interview-prep/internal/auth"
	"github.com/msvee3/Interview-prep/internal/httpserver"
	"github.com/msvee3/Interview-prep/internal/interview"
	"github.com/msvee3/Interview-prep/internal/rtc"
	"github.com/msvee3/Interview-prep/internal/telemetry"
	"github.com/msvee3/Interview-prep/internal/voice"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session server for browser clients",
		Long:  "Run an HTTP server that hosts interview sessions for browser clients, with live events over WebSocket and optional WebRTC audio.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), deps)
		},
	}

	cmd.Flags().StringVar(&deps.Config.HTTPAddress, "addr", deps.Config.HTTPAddress, "Address to listen on")

	return cmd
}

func runServer(ctx context.Context, deps *Dependencies) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := deps.Config
	m := telemetry.New("")

	srv := httpserver.New(httpserver.Deps{
		Gateway: func(provider auth.Provider) interview.Gateway {
			return newGateway(cfg, provider, m)
		},
		Voice: func(src voice.AudioSource, sink voice.AudioSink) interview.Voice {
			return newVoice(cfg, src, sink)
		},
		ICEServers:     rtc.ParseICEServers(cfg.ICEServersJSON),
		Observer:       m,
		Archiver:       newArchiver(cfg),
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        m.Handler(),
	})
	defer srv.Shutdown()

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Printf("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
	return nil
}
