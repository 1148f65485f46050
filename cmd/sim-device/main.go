// Command sim-device emulates a shopkeeper's device against a running
// kirana-voice daemon. It connects to /ws/device, announces a runtime,
// and walks a scripted conversation: streaming partial results word by
// word when told to listen, and acknowledging speak commands.
//
// Useful for exercising the full daemon without a phone or browser:
//
//	go run ./cmd/sim-device
//	go run ./cmd/sim-device -url ws://localhost:8181/ws/device -runtime native
//	go run ./cmd/sim-device -script "how much rice do we have;add two kilo sugar"
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// message mirrors the bridge wire frame.
type message struct {
	Type              string `json:"type"`
	Runtime           string `json:"runtime,omitempty"`
	EmitsFinal        bool   `json:"emits_final,omitempty"`
	SignalsCompletion bool   `json:"signals_completion,omitempty"`
	Text              string `json:"text,omitempty"`
	Language          string `json:"language,omitempty"`
	Code              string `json:"code,omitempty"`
	Message           string `json:"message,omitempty"`
}

func main() {
	url := flag.String("url", "ws://localhost:8181/ws/device", "Device endpoint URL")
	runtime := flag.String("runtime", "webspeech", "Announced runtime: webspeech or native")
	script := flag.String("script", "how much rice do we have;kitna doodh bacha hai", "Semicolon-separated utterances")
	wordDelay := flag.Duration("word-delay", 250*time.Millisecond, "Delay between partial results")
	flag.Parse()

	utterances := strings.Split(*script, ";")
	native := *runtime == "native"

	fmt.Println("📱 Kirana device simulator")
	fmt.Printf("   endpoint: %s\n", *url)
	fmt.Printf("   runtime:  %s\n", *runtime)
	fmt.Printf("   script:   %d utterances\n", len(utterances))
	fmt.Println()

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		fmt.Printf("❌ Connect failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	// Writes come from several goroutines; gorilla conns want one
	// writer at a time.
	var writeMu sync.Mutex
	send := func(msg message) {
		data, err := json.Marshal(msg)
		if err != nil {
			fmt.Printf("❌ Marshal: %v\n", err)
			os.Exit(1)
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			fmt.Printf("❌ Write: %v\n", err)
			os.Exit(1)
		}
	}

	send(message{
		Type:              "hello",
		Runtime:           *runtime,
		EmitsFinal:        native,
		SignalsCompletion: native,
	})
	fmt.Println("🔌 Attached, waiting for listen command...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n🛑 Interrupted")
		conn.Close()
		os.Exit(0)
	}()

	next := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("🔌 Disconnected: %v\n", err)
			return
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "listen":
			if next >= len(utterances) {
				fmt.Println("✅ Script finished, staying silent")
				continue
			}
			utterance := strings.TrimSpace(utterances[next])
			next++
			go speakUtterance(send, utterance, native, *wordDelay)

		case "stop_listening":
			// The daemon committed; nothing to do.

		case "speak":
			fmt.Printf("🔊 Reply (%s): %s\n", msg.Language, msg.Text)
			if native {
				// Pretend playback takes a beat, then confirm.
				go func(text string) {
					time.Sleep(300 * time.Millisecond)
					send(message{Type: "speak_done"})
				}(msg.Text)
			}

		case "cancel_speech":
			fmt.Println("🔇 Playback cancelled")
		}
	}
}

// speakUtterance streams an utterance the way a recognizer would:
// cumulative partials word by word, then a final result on native
// runtimes.
func speakUtterance(send func(message), utterance string, native bool, wordDelay time.Duration) {
	fmt.Printf("🎤 Speaking: %q\n", utterance)
	words := strings.Fields(utterance)
	for i := range words {
		time.Sleep(wordDelay)
		send(message{Type: "partial", Text: strings.Join(words[:i+1], " ")})
	}
	if native {
		time.Sleep(wordDelay)
		send(message{Type: "final", Text: utterance})
	}
	// Web Speech runtimes go quiet and let the silence window commit.
}
