package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestVoiceFor(t *testing.T) {
	tests := []struct {
		language string
		want     string
	}{
		{"hi", "hi-IN-SwaraNeural"},
		{"te", "te-IN-ShrutiNeural"},
		{"en", "en-IN-NeerjaNeural"},
		{"fr", "en-IN-NeerjaNeural"}, // unknown falls back to English
		{"", "en-IN-NeerjaNeural"},
	}
	for _, tt := range tests {
		if got := VoiceFor(tt.language); got != tt.want {
			t.Errorf("VoiceFor(%q) = %q, want %q", tt.language, got, tt.want)
		}
	}
}

func TestEstimateDuration(t *testing.T) {
	if got := EstimateDuration(6000); got != time.Second {
		t.Errorf("6000 bytes should estimate 1s, got %v", got)
	}
	if got := EstimateDuration(0); got != 0 {
		t.Errorf("0 bytes should estimate 0, got %v", got)
	}
}

func TestEstimateSpeechDuration(t *testing.T) {
	if got := EstimateSpeechDuration(""); got != 0 {
		t.Errorf("empty text should estimate 0, got %v", got)
	}
	if got := EstimateSpeechDuration("ok"); got != time.Second {
		t.Errorf("short text should hit the 1s floor, got %v", got)
	}
	long := strings.Repeat("a", 150)
	if got := EstimateSpeechDuration(long); got != 10*time.Second {
		t.Errorf("150 chars should estimate 10s, got %v", got)
	}
}

func TestClientSynthesize(t *testing.T) {
	audio := []byte("mp3-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("text"); got != "stock updated" {
			t.Errorf("unexpected text param: %q", got)
		}
		if got := r.URL.Query().Get("language"); got != "hi" {
			t.Errorf("unexpected language param: %q", got)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer srv.Close()

	client, err := NewClient(DefaultConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	result, err := client.Synthesize(context.Background(), "stock updated", "hi")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(result.Audio) != string(audio) {
		t.Errorf("unexpected audio bytes")
	}
	if result.Voice != "hi-IN-SwaraNeural" {
		t.Errorf("unexpected voice: %s", result.Voice)
	}
	if result.Cached {
		t.Error("first fetch should not be cached")
	}
}

func TestClientUsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("audio"))
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL)
	cfg.Cache = NewCache(0, 0)
	client, _ := NewClient(cfg)

	for i := 0; i < 3; i++ {
		if _, err := client.Synthesize(context.Background(), "Done", "en"); err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
	}

	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 backend fetch, got %d", n)
	}
	stats := cfg.Cache.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestClientEmptyText(t *testing.T) {
	client, _ := NewClient(DefaultConfig("http://localhost:1"))
	if _, err := client.Synthesize(context.Background(), "  ", "en"); err != ErrEmptyText {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestCacheNormalizesText(t *testing.T) {
	cache := NewCache(0, 0)
	cache.Set("  Stock Updated ", "en", "v", []byte("a"))
	if _, ok := cache.Get("stock updated", "en", "v"); !ok {
		t.Error("expected hit after normalization")
	}
	if _, ok := cache.Get("stock updated", "hi", "v"); ok {
		t.Error("different language must not hit")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := NewCache(0, time.Hour)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set("hello", "en", "v", []byte("audio"))
	if _, ok := cache.Get("hello", "en", "v"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(2 * time.Hour)
	if _, ok := cache.Get("hello", "en", "v"); ok {
		t.Error("expected miss after TTL")
	}
	if stats := cache.Stats(); stats.Entries != 0 {
		t.Errorf("expired entry should be removed, got %d entries", stats.Entries)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewCache(10, time.Hour)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set("a", "en", "v", []byte("aaaa"))
	now = now.Add(time.Second)
	cache.Set("b", "en", "v", []byte("bbbb"))
	now = now.Add(time.Second)
	cache.Get("a", "en", "v") // refresh a
	now = now.Add(time.Second)
	cache.Set("c", "en", "v", []byte("cccc")) // over budget, evicts b

	if _, ok := cache.Get("b", "en", "v"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := cache.Get("a", "en", "v"); !ok {
		t.Error("expected a to survive")
	}
	if _, ok := cache.Get("c", "en", "v"); !ok {
		t.Error("expected c to survive")
	}
}

type fakePlayer struct {
	played [][]byte
}

func (p *fakePlayer) Play(ctx context.Context, audio []byte) error {
	p.played = append(p.played, audio)
	return nil
}

type fakeProvider struct{}

func (fakeProvider) Synthesize(ctx context.Context, text, language string) (*AudioResult, error) {
	return &AudioResult{Audio: []byte("audio"), Duration: 10 * time.Millisecond}, nil
}

func TestSynthesizerWaitsEstimateWithoutCompletionSignal(t *testing.T) {
	player := &fakePlayer{}
	synth := NewSynthesizer(fakeProvider{}, player, nil)

	start := time.Now()
	if err := synth.Speak(context.Background(), "hello", "en"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("expected Speak to wait out the estimate, returned in %v", elapsed)
	}
	if len(player.played) != 1 {
		t.Errorf("expected 1 playback, got %d", len(player.played))
	}
}

func TestSynthesizerStopInterruptsWait(t *testing.T) {
	provider := fakeProviderWithDuration{duration: 5 * time.Second}
	synth := NewSynthesizer(provider, &fakePlayer{}, nil)

	done := make(chan error, 1)
	go func() { done <- synth.Speak(context.Background(), "long reply", "en") }()

	time.Sleep(20 * time.Millisecond)
	synth.Stop()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected interruption error")
		}
	case <-time.After(time.Second):
		t.Fatal("Speak did not return after Stop")
	}
}

type fakeProviderWithDuration struct {
	duration time.Duration
}

func (p fakeProviderWithDuration) Synthesize(ctx context.Context, text, language string) (*AudioResult, error) {
	return &AudioResult{Audio: []byte("audio"), Duration: p.duration}, nil
}
