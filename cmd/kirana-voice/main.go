// Command kirana-voice runs the voice session daemon for the kirana
// storefront: it serves the shopkeeper dashboard, accepts device
// connections on /ws/device, and drives listen → think → speak turns
// against the storefront backend.
//
// Usage:
//
//	go run ./cmd/kirana-voice
//	go run ./cmd/kirana-voice -lang hi -backend http://localhost:8000
//	go run ./cmd/kirana-voice -no-speech-policy end -debug
//
// Environment variables (flags take precedence):
//
//	KIRANA_BACKEND_URL - Storefront backend base URL
//	KIRANA_LANG        - Conversation language (en, hi, te, ta, ...)
//	KIRANA_PORT        - Dashboard listen port
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kiranaai/go-kirana/internal/config"
	"github.com/kiranaai/go-kirana/internal/log"
	"github.com/kiranaai/go-kirana/pkg/backend"
	"github.com/kiranaai/go-kirana/pkg/session"
	"github.com/kiranaai/go-kirana/pkg/tts"
	"github.com/kiranaai/go-kirana/pkg/web"
)

func main() {
	// Load .env if present; real env vars win.
	godotenv.Load()

	port := flag.String("port", config.DashboardPort(), "Dashboard and device listen port")
	backendURL := flag.String("backend", config.BackendURL(), "Storefront backend base URL")
	lang := flag.String("lang", config.Language(), "Conversation language tag")
	noSpeechPolicy := flag.String("no-speech-policy", "restart", "Silence handling: restart or end")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level)
	logger := log.With("component", "daemon")

	sessCfg := session.DefaultConfig()
	sessCfg.Language = *lang
	switch *noSpeechPolicy {
	case "restart":
		sessCfg.NoSpeechPolicy = session.NoSpeechRestart
	case "end":
		sessCfg.NoSpeechPolicy = session.NoSpeechEnd
	default:
		fmt.Fprintf(os.Stderr, "unknown no-speech policy %q (want restart or end)\n", *noSpeechPolicy)
		os.Exit(1)
	}

	convCfg := backend.DefaultConfig(*backendURL)
	convCfg.Logger = log.L()
	conv, err := backend.NewClient(convCfg)
	if err != nil {
		logger.Error("backend client", "error", err)
		os.Exit(1)
	}

	ttsCfg := tts.DefaultConfig(*backendURL)
	ttsCfg.Logger = log.L()
	ttsClient, err := tts.NewClient(ttsCfg)
	if err != nil {
		logger.Error("tts client", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(*port, log.L())
	d := newDaemon(server, conv, ttsClient, sessCfg, log.L())
	d.wire()

	server.StartAsync()
	logger.Info("kirana-voice running",
		"port", *port,
		"backend", *backendURL,
		"language", *lang,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	logger.Info("shutting down")
	d.shutdown()
	if err := server.Shutdown(); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
}
