// Package session implements the voice conversation state machine: a
// turn-taking loop between the shopkeeper and the conversational backend
// with speech as the only input/output modality.
//
// The controller drives listen → transcribe → dispatch → synthesize →
// relisten cycles and tolerates flaky platform speech APIs. Recognizers
// deliver results asynchronously and unreliably: some emit only partial
// results, some also emit a final result, some silently stop without
// signaling. The loop therefore never waits on a single signal; every
// state carries its own timers:
//
//   - silence window: reset on every partial result, commits the
//     utterance after a quiet period
//   - force-commit ceiling: armed once per utterance on the first
//     meaningful partial, commits unconditionally
//   - no-speech timeout: fires when nothing was recognized at all
//   - speaking watchdog: recovers from playback that never signals
//     completion
//   - backend timeout: bounds the only unbounded-wall-clock operation
//
// All state lives on a single event-loop goroutine. Capture callbacks,
// synthesis results, backend replies, and timer fires are posted to the
// loop as events; stale events are detected by a per-utterance generation
// counter plus a commit latch, so a late final result after a force
// commit is discarded rather than double-submitted.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kiranaai/go-kirana/pkg/backend"
	"github.com/kiranaai/go-kirana/pkg/speech"
)

type eventKind int

const (
	evPartial eventKind = iota
	evFinal
	evCaptureError
	evSilenceElapsed
	evForceCommit
	evNoSpeech
	evWatchdog
	evRetryListen
	evBackendResult
	evSpeakResult
	evInterrupt
)

// event is one unit of work for the session loop.
type event struct {
	kind eventKind

	// gen is the utterance generation the event belongs to. Events with a
	// stale generation are discarded.
	gen uint64

	// seq disambiguates re-armed silence timers within one generation.
	seq uint64

	text  string
	err   error
	reply backend.Reply

	// sentAt is when the backend call was issued (for turn latency).
	sentAt time.Time
}

// Controller owns a single logical voice session.
//
// Start, Stop, Interrupt, and Status are safe for concurrent use. All
// other mutation happens on the internal loop goroutine.
type Controller struct {
	cfg     Config
	capture speech.Capture
	synth   speech.Synthesizer
	conv    backend.Conversation
	events  EventSink
	logger  *slog.Logger

	// gen is read by capture callbacks to stamp events.
	gen atomic.Uint64

	mu       sync.Mutex
	running  bool
	stopping bool
	status   Status
	eventCh  chan event
	stopCh   chan struct{}
	done     chan struct{}
	sessCtx  context.Context
	sessStop context.CancelFunc
}

// loopState is owned exclusively by the run goroutine.
type loopState struct {
	state      State
	transcript string
	history    *History

	// Per-utterance flags, reset on each listening cycle.
	committed  bool
	forceArmed bool
	sawPartial bool
	silenceSeq uint64

	backendFailures int

	timers timerSet
}

type timerSet struct {
	silence  *time.Timer
	force    *time.Timer
	noSpeech *time.Timer
	watchdog *time.Timer
	retry    *time.Timer
}

// cancelAll stops every pending timer. Fired-but-unprocessed timer events
// are discarded by the generation/sequence checks.
func (t *timerSet) cancelAll() {
	for _, timer := range []**time.Timer{&t.silence, &t.force, &t.noSpeech, &t.watchdog, &t.retry} {
		if *timer != nil {
			(*timer).Stop()
			*timer = nil
		}
	}
}

// New creates a session controller. The capture, synthesizer, and
// backend are the caller's concrete bindings; see pkg/speech and
// pkg/backend for the contracts.
func New(capture speech.Capture, synth speech.Synthesizer, conv backend.Conversation, cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Events == nil {
		cfg.Events = NopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Controller{
		cfg:     cfg,
		capture: capture,
		synth:   synth,
		conv:    conv,
		events:  cfg.Events,
		logger:  cfg.Logger.With("component", "session"),
	}, nil
}

// Start begins a session: Idle → Listening. It is a no-op if the session
// is already active (capture is not double-started). A capture
// acquisition failure leaves the session Idle with the error recorded;
// permission and unsupported-runtime failures are terminal.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}

	id := uuid.NewString()
	c.stopping = false
	c.eventCh = make(chan event, 64)
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	c.sessCtx, c.sessStop = context.WithCancel(context.Background())
	c.status = Status{ID: id, State: StateIdle}
	eventCh := c.eventCh
	c.mu.Unlock()

	// Callbacks are registered once per session; each event is stamped
	// with the generation current at delivery time.
	c.capture.OnPartialResult(func(text string) {
		c.post(event{kind: evPartial, gen: c.gen.Load(), text: text})
	})
	c.capture.OnFinalResult(func(text string) {
		c.post(event{kind: evFinal, gen: c.gen.Load(), text: text})
	})
	c.capture.OnError(func(err error) {
		c.post(event{kind: evCaptureError, gen: c.gen.Load(), err: err})
	})

	c.gen.Add(1)
	if err := c.capture.Start(c.cfg.Language); err != nil {
		c.mu.Lock()
		c.status.Error = err.Error()
		c.eventCh = nil
		close(c.done)
		c.sessStop()
		c.mu.Unlock()

		code := CodeRecognition
		if speech.IsFatal(err) {
			code = fatalCode(err)
		}
		c.events.SessionError(code, err.Error())
		c.logger.Error("capture start failed", "session", id, "error", err)
		return err
	}

	ls := &loopState{
		state:   StateListening,
		history: NewHistory(c.cfg.HistoryLimit),
	}
	ls.timers.noSpeech = c.afterFunc(c.cfg.NoSpeechTimeout, event{kind: evNoSpeech, gen: c.gen.Load()})

	c.mu.Lock()
	c.running = true
	c.status.Active = true
	c.status.State = StateListening
	c.mu.Unlock()

	c.events.StateChanged(StateListening, ReasonSessionStarted)
	c.logger.Info("session started", "session", id, "language", c.cfg.Language)

	go c.run(ls, eventCh, c.stopCh)
	return nil
}

// Stop ends the session from any state. It returns only after the loop
// has exited, all timers are cancelled, and capture and synthesis have
// been released. Safe to call repeatedly.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	done := c.done
	if !c.stopping {
		c.stopping = true
		close(c.stopCh)
	}
	c.mu.Unlock()

	<-done
}

// Interrupt cancels in-flight playback and immediately re-enters
// Listening, letting the user barge in. No-op outside Speaking.
func (c *Controller) Interrupt() {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		return
	}
	c.post(event{kind: evInterrupt})
}

// Status returns a snapshot of the session.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// post delivers an event to the loop, dropping it if the loop has exited.
func (c *Controller) post(ev event) {
	c.mu.Lock()
	eventCh, done := c.eventCh, c.done
	c.mu.Unlock()
	if eventCh == nil {
		return
	}
	select {
	case eventCh <- ev:
	case <-done:
	}
}

// afterFunc arms a timer that posts ev when it fires.
func (c *Controller) afterFunc(d time.Duration, ev event) *time.Timer {
	return time.AfterFunc(d, func() { c.post(ev) })
}

// run is the session event loop. All loopState mutation happens here.
func (c *Controller) run(ls *loopState, eventCh chan event, stopCh chan struct{}) {
	for {
		select {
		case <-stopCh:
			c.shutdown(ls, "", ReasonSessionStopped)
			return
		case ev := <-eventCh:
			if done := c.handle(ls, ev); done {
				return
			}
		}
	}
}

// handle processes one event. Returns true when the loop must exit.
func (c *Controller) handle(ls *loopState, ev event) bool {
	switch ev.kind {
	case evPartial:
		c.onPartial(ls, ev)
	case evFinal:
		if c.stale(ls, ev, StateListening) || ls.committed {
			return false
		}
		text := ev.text
		if strings.TrimSpace(text) == "" {
			text = ls.transcript
		}
		return c.commit(ls, text)
	case evSilenceElapsed:
		if c.stale(ls, ev, StateListening) || ls.committed || ev.seq != ls.silenceSeq {
			return false
		}
		return c.commit(ls, ls.transcript)
	case evForceCommit:
		if c.stale(ls, ev, StateListening) || ls.committed {
			return false
		}
		c.logger.Debug("force-commit ceiling reached", "transcript", ls.transcript)
		return c.commit(ls, ls.transcript)
	case evNoSpeech:
		return c.onNoSpeech(ls, ev)
	case evCaptureError:
		return c.onCaptureError(ls, ev)
	case evRetryListen:
		if ev.gen != c.gen.Load() {
			return false
		}
		return c.enterListening(ls, ReasonBackendRetry)
	case evBackendResult:
		return c.onBackendResult(ls, ev)
	case evSpeakResult:
		return c.onSpeakResult(ls, ev)
	case evWatchdog:
		if c.stale(ls, ev, StateSpeaking) {
			return false
		}
		c.logger.Warn("speaking watchdog fired, forcing recovery")
		c.events.SessionError(CodeWatchdog, "no synthesis completion signal")
		c.synth.Stop()
		return c.enterListening(ls, ReasonWatchdogRecovery)
	case evInterrupt:
		if ls.state != StateSpeaking {
			return false
		}
		c.synth.Stop()
		return c.enterListening(ls, ReasonInterrupted)
	}
	return false
}

// fatalCode maps a terminal capture error to its session error code.
func fatalCode(err error) ErrorCode {
	if err == speech.ErrUnsupportedRuntime || err == speech.ErrNoDevice {
		return CodeUnsupportedRuntime
	}
	return CodePermissionDenied
}

// stale reports whether the event belongs to a previous utterance or the
// wrong state.
func (c *Controller) stale(ls *loopState, ev event, want State) bool {
	return ls.state != want || ev.gen != c.gen.Load()
}

func (c *Controller) onPartial(ls *loopState, ev event) {
	if c.stale(ls, ev, StateListening) || ls.committed {
		return
	}

	ls.transcript = ev.text
	if !ls.sawPartial {
		ls.sawPartial = true
		if ls.timers.noSpeech != nil {
			ls.timers.noSpeech.Stop()
			ls.timers.noSpeech = nil
		}
	}

	// Reset the silence window on every partial; the sequence number
	// keeps an already-fired old window from committing early.
	ls.silenceSeq++
	if ls.timers.silence != nil {
		ls.timers.silence.Stop()
	}
	ls.timers.silence = c.afterFunc(c.cfg.SilenceWindow,
		event{kind: evSilenceElapsed, gen: ev.gen, seq: ls.silenceSeq})

	// Arm the force-commit ceiling once per utterance, on the first
	// meaningful partial.
	if !ls.forceArmed && len([]rune(ev.text)) >= c.cfg.MinUtteranceRunes {
		ls.forceArmed = true
		ls.timers.force = c.afterFunc(c.cfg.ForceCommitAfter, event{kind: evForceCommit, gen: ev.gen})
	}

	c.setTranscript(ls.transcript)
	c.events.PartialTranscript(ev.text)
}

// commit closes the utterance and dispatches it to the backend. Exactly
// one commit path wins per utterance; the latch filters the rest.
func (c *Controller) commit(ls *loopState, text string) bool {
	ls.committed = true
	ls.timers.cancelAll()
	c.capture.Stop()

	text = strings.TrimSpace(text)
	if text == "" {
		return c.enterListening(ls, ReasonEmptyTranscript)
	}

	ls.state = StateThinking
	c.publish(ls)
	c.events.StateChanged(StateThinking, ReasonUtteranceCommit)
	c.logger.Info("utterance committed", "text", text)

	gen := c.gen.Load()
	history := ls.history.Snapshot()
	sentAt := time.Now()

	c.mu.Lock()
	sessCtx := c.sessCtx
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(sessCtx, c.cfg.BackendTimeout)
		defer cancel()
		reply, err := c.conv.Send(ctx, text, history, c.cfg.Language)
		c.post(event{kind: evBackendResult, gen: gen, text: text, reply: reply, err: err, sentAt: sentAt})
	}()
	return false
}

func (c *Controller) onBackendResult(ls *loopState, ev event) bool {
	if c.stale(ls, ev, StateThinking) {
		return false
	}

	if ev.err != nil {
		ls.backendFailures++
		code := CodeBackendError
		if backend.IsTimeout(ev.err) {
			code = CodeBackendTimeout
		}
		c.setError(ev.err.Error())
		c.events.SessionError(code, ev.err.Error())
		c.logger.Warn("backend call failed",
			"error", ev.err,
			"consecutive_failures", ls.backendFailures,
		)

		if ls.backendFailures >= c.cfg.MaxBackendFailures {
			c.shutdown(ls, "backend unavailable: "+ev.err.Error(), ReasonSessionFailed)
			return true
		}

		// Re-enter listening after a short, linearly growing delay.
		delay := c.cfg.RetryDelay * time.Duration(ls.backendFailures)
		ls.timers.retry = c.afterFunc(delay, event{kind: evRetryListen, gen: c.gen.Load()})
		return false
	}

	ls.backendFailures = 0
	ls.history.AppendTurn(ev.text, ev.reply.Text)
	ls.transcript = ""

	turn := Turn{
		ID:              uuid.NewString(),
		User:            ev.text,
		Reply:           ev.reply.Text,
		ActionPerformed: ev.reply.ActionPerformed,
		Latency:         time.Since(ev.sentAt),
	}

	c.mu.Lock()
	c.status.LastResponse = ev.reply.Text
	c.status.Transcript = ""
	c.status.Error = ""
	c.status.Turns = ls.history.Len() / 2
	c.mu.Unlock()

	c.events.TurnCompleted(turn)
	c.logger.Info("turn completed",
		"turn", turn.ID,
		"action", turn.ActionPerformed,
		"latency_ms", turn.Latency.Milliseconds(),
	)

	c.enterSpeaking(ls, ev.reply.Text)
	return false
}

func (c *Controller) enterSpeaking(ls *loopState, text string) {
	ls.timers.cancelAll()
	ls.state = StateSpeaking
	c.publish(ls)
	c.events.StateChanged(StateSpeaking, ReasonReplyReceived)

	gen := c.gen.Load()
	ls.timers.watchdog = c.afterFunc(c.cfg.SpeakingWatchdog, event{kind: evWatchdog, gen: gen})

	c.mu.Lock()
	sessCtx := c.sessCtx
	c.mu.Unlock()

	go func() {
		err := c.synth.Speak(sessCtx, text, c.cfg.Language)
		c.post(event{kind: evSpeakResult, gen: gen, err: err})
	}()
}

func (c *Controller) onSpeakResult(ls *loopState, ev event) bool {
	if c.stale(ls, ev, StateSpeaking) {
		return false
	}

	reason := ReasonPlaybackFinished
	if ev.err != nil && ev.err != speech.ErrInterrupted {
		reason = ReasonPlaybackFailed
		c.setError(ev.err.Error())
		c.events.SessionError(CodeSynthesis, ev.err.Error())
		c.logger.Warn("synthesis failed, dropping reply", "error", ev.err)
	}
	return c.enterListening(ls, reason)
}

func (c *Controller) onNoSpeech(ls *loopState, ev event) bool {
	if c.stale(ls, ev, StateListening) || ls.sawPartial || ls.committed {
		return false
	}

	c.events.SessionError(CodeNoSpeech, "no speech detected")
	if c.cfg.NoSpeechPolicy == NoSpeechEnd {
		c.shutdown(ls, "no speech detected", ReasonSessionFailed)
		return true
	}
	c.logger.Debug("no speech detected, restarting capture")
	return c.enterListening(ls, ReasonNoSpeech)
}

func (c *Controller) onCaptureError(ls *loopState, ev event) bool {
	if speech.IsFatal(ev.err) {
		c.events.SessionError(fatalCode(ev.err), ev.err.Error())
		c.shutdown(ls, ev.err.Error(), ReasonSessionFailed)
		return true
	}
	if c.stale(ls, ev, StateListening) || ls.committed {
		return false
	}

	c.setError(ev.err.Error())
	c.events.SessionError(CodeRecognition, ev.err.Error())
	c.logger.Warn("recognition error, restarting capture", "error", ev.err)

	ls.timers.cancelAll()
	c.capture.Stop()
	ls.timers.retry = c.afterFunc(c.cfg.RetryDelay, event{kind: evRetryListen, gen: c.gen.Load()})
	return false
}

// enterListening starts a fresh capture cycle. The previous state's
// timers are cancelled and synthesis stopped before capture starts: only
// one capability is owned at a time. Returns true when a fatal capture
// restart failure ended the session, so callers exit the loop.
func (c *Controller) enterListening(ls *loopState, reason Reason) bool {
	ls.timers.cancelAll()
	c.synth.Stop()

	gen := c.gen.Add(1)
	ls.state = StateListening
	ls.transcript = ""
	ls.committed = false
	ls.forceArmed = false
	ls.sawPartial = false
	ls.silenceSeq = 0

	if err := c.capture.Start(c.cfg.Language); err != nil {
		if speech.IsFatal(err) {
			c.events.SessionError(fatalCode(err), err.Error())
			c.shutdown(ls, err.Error(), ReasonSessionFailed)
			return true
		}
		c.setError(err.Error())
		c.events.SessionError(CodeRecognition, err.Error())
		ls.timers.retry = c.afterFunc(c.cfg.RetryDelay, event{kind: evRetryListen, gen: gen})
		c.publish(ls)
		return false
	}

	ls.timers.noSpeech = c.afterFunc(c.cfg.NoSpeechTimeout, event{kind: evNoSpeech, gen: gen})
	c.publish(ls)
	c.events.StateChanged(StateListening, reason)
	return false
}

// shutdown releases everything and exits the loop: all timers cancelled,
// capture and synthesis stopped, in-flight backend calls abandoned.
// Idempotent, so a stop racing a fatal error cannot close done twice.
func (c *Controller) shutdown(ls *loopState, errMsg string, reason Reason) {
	if ls.state == StateIdle {
		return
	}
	ls.timers.cancelAll()
	c.capture.Stop()
	c.synth.Stop()

	c.mu.Lock()
	c.sessStop()
	c.running = false
	c.status.State = StateIdle
	c.status.Active = false
	c.status.Transcript = ""
	if errMsg != "" {
		c.status.Error = errMsg
	}
	done := c.done
	c.mu.Unlock()

	ls.state = StateIdle
	c.events.StateChanged(StateIdle, reason)
	if reason == ReasonSessionFailed {
		c.logger.Error("session failed", "error", errMsg)
	} else {
		c.logger.Info("session stopped")
	}
	close(done)
}

// Snapshot helpers: the loop owns the truth, the mutex guards the copy.

func (c *Controller) publish(ls *loopState) {
	c.mu.Lock()
	c.status.State = ls.state
	c.status.Transcript = ls.transcript
	c.mu.Unlock()
}

func (c *Controller) setTranscript(text string) {
	c.mu.Lock()
	c.status.Transcript = text
	c.mu.Unlock()
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	c.status.Error = msg
	c.mu.Unlock()
}
