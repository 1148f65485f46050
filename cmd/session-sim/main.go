// Command session-sim replays scripted utterances through the session
// state machine with mocked speech, against either canned replies or a
// real storefront backend. Run it to tune the timing windows and measure
// per-turn latency without a device attached.
//
// Usage:
//
//	go run ./cmd/session-sim
//	go run ./cmd/session-sim -backend http://localhost:8000 -lang hi
//	go run ./cmd/session-sim -script "how much rice do we have;add two kilo sugar" -word-delay 200ms
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kiranaai/go-kirana/internal/log"
	"github.com/kiranaai/go-kirana/pkg/backend"
	"github.com/kiranaai/go-kirana/pkg/session"
	"github.com/kiranaai/go-kirana/pkg/speech"
)

func main() {
	backendURL := flag.String("backend", "", "Real backend base URL (empty uses canned replies)")
	lang := flag.String("lang", "en", "Conversation language tag")
	script := flag.String("script", "how much rice do we have;what should I reorder;add two kilo sugar", "Semicolon-separated utterances")
	wordDelay := flag.Duration("word-delay", 200*time.Millisecond, "Delay between partial results")
	silence := flag.Duration("silence", session.DefaultSilenceWindow, "Silence window before commit")
	debug := flag.Bool("debug", false, "Enable debug output")
	flag.Parse()

	level := "warn"
	if *debug {
		level = "debug"
	}
	log.Init(level)

	utterances := strings.Split(*script, ";")

	fmt.Println("🎙  Session simulator")
	fmt.Printf("Utterances: %d\n", len(utterances))
	fmt.Printf("Word delay: %s | Silence window: %s\n", *wordDelay, *silence)
	if *backendURL != "" {
		fmt.Printf("Backend: %s\n", *backendURL)
	} else {
		fmt.Println("Backend: canned replies")
	}
	fmt.Println()

	conv := buildBackend(*backendURL)
	capture := speech.NewMockCapture()
	synth := speech.NewMockSynthesizer()
	sink := &simSink{
		turns:     make(chan session.Turn, len(utterances)),
		listening: make(chan struct{}, len(utterances)+1),
		debug:     *debug,
	}

	cfg := session.DefaultConfig()
	cfg.Language = *lang
	cfg.SilenceWindow = *silence
	cfg.Events = sink
	cfg.Logger = log.L()

	ctrl, err := session.New(capture, synth, conv, cfg)
	if err != nil {
		fmt.Printf("❌ Config error: %v\n", err)
		os.Exit(1)
	}
	if err := ctrl.Start(); err != nil {
		fmt.Printf("❌ Start failed: %v\n", err)
		os.Exit(1)
	}
	defer ctrl.Stop()

	var turns []session.Turn
	for i, utterance := range utterances {
		utterance = strings.TrimSpace(utterance)
		fmt.Printf("📝 Turn %d/%d: %q\n", i+1, len(utterances), utterance)

		words := strings.Fields(utterance)
		for j := range words {
			capture.SimulatePartial(strings.Join(words[:j+1], " "))
			time.Sleep(*wordDelay)
		}

		select {
		case turn := <-sink.turns:
			turns = append(turns, turn)
			fmt.Printf("   💬 %s (%dms)\n", truncate(turn.Reply, 60), turn.Latency.Milliseconds())
		case <-time.After(30 * time.Second):
			fmt.Println("   ❌ Timed out waiting for reply")
			printSummary(turns)
			os.Exit(1)
		}

		// Wait for the loop to re-enter listening before the next turn.
		select {
		case <-sink.listening:
		case <-time.After(5 * time.Second):
			fmt.Println("   ❌ Session never came back to listening")
			printSummary(turns)
			os.Exit(1)
		}
	}

	printSummary(turns)
}

// buildBackend returns the real client for a URL or a canned mock.
func buildBackend(url string) backend.Conversation {
	if url != "" {
		client, err := backend.NewClient(backend.DefaultConfig(url))
		if err != nil {
			fmt.Printf("❌ Backend client: %v\n", err)
			os.Exit(1)
		}
		return client
	}

	mock := backend.NewMock()
	mock.SendFunc = func(ctx context.Context, message string, history []backend.Message, language string) (backend.Reply, error) {
		return backend.Reply{
			Text: fmt.Sprintf("Noted: %s (history %d entries)", message, len(history)),
		}, nil
	}
	return mock
}

// simSink collects completed turns and listening transitions.
type simSink struct {
	turns     chan session.Turn
	listening chan struct{}
	debug     bool
}

func (s *simSink) StateChanged(state session.State, reason session.Reason) {
	if s.debug {
		fmt.Printf("   · %s (%s)\n", state, reason)
	}
	if state == session.StateListening && reason != session.ReasonSessionStarted {
		select {
		case s.listening <- struct{}{}:
		default:
		}
	}
}

func (s *simSink) PartialTranscript(string) {}

func (s *simSink) TurnCompleted(turn session.Turn) {
	s.turns <- turn
}

func (s *simSink) SessionError(code session.ErrorCode, detail string) {
	fmt.Printf("   ⚠️  %s: %s\n", code, detail)
}

func printSummary(turns []session.Turn) {
	fmt.Println()
	fmt.Println("📊 Results")
	fmt.Println("==========")
	if len(turns) == 0 {
		fmt.Println("No completed turns.")
		return
	}

	var total, min, max time.Duration
	for i, turn := range turns {
		if i == 0 || turn.Latency < min {
			min = turn.Latency
		}
		if turn.Latency > max {
			max = turn.Latency
		}
		total += turn.Latency
	}
	fmt.Printf("Turns:        %d\n", len(turns))
	fmt.Printf("Latency avg:  %dms\n", (total / time.Duration(len(turns))).Milliseconds())
	fmt.Printf("Latency min:  %dms\n", min.Milliseconds())
	fmt.Printf("Latency max:  %dms\n", max.Milliseconds())
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
