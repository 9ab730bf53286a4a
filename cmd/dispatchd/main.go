// dispatchd is the live emergency-call orchestration server. It accepts
// telephony bridge connections, routes caller audio through the configured
// answer pipeline, keeps a structured incident picture per call, and gates
// dispatch actions behind human approval.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/firstlinehq/go-dispatch/internal/config"
	"github.com/firstlinehq/go-dispatch/internal/log"
	"github.com/firstlinehq/go-dispatch/pkg/agent"
	"github.com/firstlinehq/go-dispatch/pkg/events"
	"github.com/firstlinehq/go-dispatch/pkg/extract"
	"github.com/firstlinehq/go-dispatch/pkg/hub"
	"github.com/firstlinehq/go-dispatch/pkg/report"
	"github.com/firstlinehq/go-dispatch/pkg/session"
	"github.com/firstlinehq/go-dispatch/pkg/stt"
	"github.com/firstlinehq/go-dispatch/pkg/tts"
	"github.com/firstlinehq/go-dispatch/pkg/web"
)

func main() {
	cfg := config.Load()
	log.Init(cfg.LogLevel)

	if cfg.STTURL == "" || cfg.TTSURL == "" || cfg.AgentURL == "" {
		log.Error("missing vendor endpoints",
			"stt_url_set", cfg.STTURL != "",
			"tts_url_set", cfg.TTSURL != "",
			"agent_url_set", cfg.AgentURL != "")
		log.Error("set DISPATCH_STT_URL, DISPATCH_TTS_URL and DISPATCH_AGENT_URL")
		os.Exit(1)
	}

	sttProvider, err := stt.NewWS(cfg.STTURL, cfg.APIKey, log.L())
	if err != nil {
		log.Error("stt provider", "error", err)
		os.Exit(1)
	}
	defer sttProvider.Close()

	agentProvider, err := agent.NewWS(cfg.AgentURL, cfg.APIKey, log.L())
	if err != nil {
		log.Error("agent provider", "error", err)
		os.Exit(1)
	}
	defer agentProvider.Close()

	ttsProvider, err := tts.NewHTTP(
		tts.WithBaseURL(cfg.TTSURL),
		tts.WithAPIKey(cfg.APIKey),
		tts.WithTimeout(cfg.SynthesisTimeout),
		tts.WithLogger(log.L()),
	)
	if err != nil {
		log.Error("tts provider", "error", err)
		os.Exit(1)
	}
	defer ttsProvider.Close()

	extractor, err := extract.NewClient(cfg.LLMBaseURL, cfg.APIKey,
		extract.WithModel(cfg.LLMModel),
		extract.WithTimeout(cfg.ExtractTimeout),
		extract.WithLogger(log.L()),
	)
	if err != nil {
		log.Error("extraction client", "error", err)
		os.Exit(1)
	}

	reporter, err := report.NewGenerator(extractor, cfg.ReportDir, log.L())
	if err != nil {
		log.Error("report generator", "error", err)
		os.Exit(1)
	}

	// Session events fan out to dispatcher-console observers.
	observe := hub.New("observe")
	publisher := events.PublisherFunc(func(evt events.Event) {
		if err := observe.BroadcastJSON(evt); err != nil {
			log.Debug("observer broadcast", "error", err)
		}
	})

	bridge := web.NewBridge()
	registry := session.NewRegistry(session.Config{
		ExtractDebounce:  cfg.ExtractDebounce,
		RetentionWindow:  cfg.RetentionWindow,
		ExtractTimeout:   cfg.ExtractTimeout,
		SynthesisTimeout: cfg.SynthesisTimeout,
	}, session.Deps{
		STT:       sttProvider,
		Agent:     agentProvider,
		TTS:       ttsProvider,
		Extractor: extractor,
		Reporter:  reporter,
		Outbound:  bridge,
		Events:    publisher,
	})
	registry.SetAgentMode(cfg.AgentMode)
	bridge.Bind(registry)

	srv := web.NewServer(cfg.Port, registry, bridge, observe, map[string]web.HealthCheck{
		"stt":   sttProvider.Health,
		"agent": agentProvider.Health,
		"tts":   ttsProvider.Health,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		log.Error("server stopped", "error", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Warn("server shutdown", "error", err)
	}
	registry.Drain()
	log.Info("shutdown complete")
}
