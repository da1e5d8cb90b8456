package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/channel"
	"github.com/lexiqai/voice-companion/internal/config"
	"github.com/lexiqai/voice-companion/internal/device"
	"github.com/lexiqai/voice-companion/internal/engine"
	"github.com/lexiqai/voice-companion/internal/observability"
	"github.com/lexiqai/voice-companion/internal/persona"
	"github.com/lexiqai/voice-companion/internal/resilience"
	"github.com/lexiqai/voice-companion/internal/tools"
	"github.com/lexiqai/voice-companion/internal/transcript"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("transport", cfg.LiveTransport).
		Str("model", cfg.LiveModel).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice Companion starting")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// System instruction with the read-only contact book
	contacts, err := persona.LoadContacts(cfg.ContactsFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.ContactsFile).Msg("Failed to load contacts")
	}
	logger.Info().Int("contacts", len(contacts)).Msg("Contact book loaded")

	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
	resetTimeout := time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second

	// Phone dialer
	var phone tools.Dialer
	var twilioDialer *tools.TwilioDialer
	if cfg.TwilioEnabled() {
		twilioDialer = tools.NewTwilioDialer(tools.TwilioDialerConfig{
			AccountSID:   cfg.TwilioAccountSID,
			AuthToken:    cfg.TwilioAuthToken,
			FromNumber:   cfg.TwilioFromNumber,
			BridgeNumber: cfg.DialerBridgeNumber,
		}, resilience.NewCircuitBreaker("twilio", cfg.CircuitBreakerMaxFailures, resetTimeout), retry, logger)
		phone = twilioDialer
		logger.Info().Msg("Twilio dialer enabled")
	} else {
		phone = tools.NewLogDialer(logger)
	}
	router := tools.NewRouter(logger, tools.NewPhoneCallTool(ctx, phone, logger))

	// Live transport
	var dialer channel.Dialer
	switch cfg.LiveTransport {
	case config.TransportWebSocket:
		breaker := resilience.NewCircuitBreaker("live_relay", cfg.CircuitBreakerMaxFailures, resetTimeout)
		dialer = channel.NewWebSocketDialer(cfg.LiveRelayURL, cfg.SendQueueSize, retry, breaker, logger)
	default:
		genaiDialer, err := channel.NewGenAIDialer(ctx, cfg.GeminiAPIKey, cfg.SendQueueSize, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Gemini Live client")
		}
		dialer = genaiDialer
	}

	controller := engine.New(cfg, engine.Deps{
		Dialer:      dialer,
		Capture:     device.NewMalgoCapture(logger),
		Playback:    device.NewOtoOutput(cfg.PlaybackDeviceRate(), logger),
		Tools:       router,
		Instruction: persona.Instruction(contacts),
		Callbacks:   consoleCallbacks(logger),
		Logger:      logger,
	})

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := controller.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Live controller failed")
		}
	}()

	// Create HTTP server
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness reports the live session state
	mux.HandleFunc("/ready", observability.ReadinessHandler(controller.Ready))

	// Session controls
	mux.HandleFunc("POST /session/start", func(w http.ResponseWriter, r *http.Request) {
		if err := controller.Start(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("POST /session/stop", func(w http.ResponseWriter, r *http.Request) {
		controller.Stop()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /session/mute", func(w http.ResponseWriter, r *http.Request) {
		controller.SetOutputMuted(r.URL.Query().Get("muted") != "false")
		w.WriteHeader(http.StatusNoContent)
	})

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Voice mode starts with the process
	if err := controller.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to start voice mode")
	}

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()
	logger.Info().Msg("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("Live session did not release in time")
	}
	if twilioDialer != nil {
		twilioDialer.Wait()
	}

	logger.Info().Msg("Voice Companion exited gracefully")
}

// consoleCallbacks reports session output to the log. A UI host would render
// transcripts in place by message ID.
func consoleCallbacks(logger zerolog.Logger) engine.Callbacks {
	return engine.Callbacks{
		OnTranscript: func(u transcript.Update) {
			if !u.Final {
				logger.Debug().Str("message_id", u.MessageID).Str("speaker", string(u.Speaker)).Str("text", u.Text).Msg("Transcript")
				return
			}
			logger.Info().Str("message_id", u.MessageID).Str("speaker", string(u.Speaker)).Str("text", u.Text).Msg("Turn complete")
		},
		OnNotice: func(n engine.Notice) {
			logger.Warn().Err(n.Err).Str("kind", string(n.Kind)).Msg(n.Message)
		},
		OnState: func(s engine.State) {
			logger.Info().Str("state", string(s)).Msg("Voice mode state")
		},
	}
}
