package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranaai/go-kirana/pkg/backend"
	"github.com/kiranaai/go-kirana/pkg/session"
	"github.com/kiranaai/go-kirana/pkg/speech"
	"github.com/kiranaai/go-kirana/pkg/speech/bridge"
	"github.com/kiranaai/go-kirana/pkg/tts"
	"github.com/kiranaai/go-kirana/pkg/web"
)

var errNoDevice = errors.New("no device attached")

// daemon ties the web server, the attached device, and the session
// controller together. One device and one session at a time; a new
// device replaces the old one.
type daemon struct {
	server  *web.Server
	conv    backend.Conversation
	tts     *tts.Client
	sessCfg session.Config
	logger  *slog.Logger

	mu         sync.Mutex
	device     *bridge.Bridge
	caps       speech.Capabilities
	controller *session.Controller
}

func newDaemon(server *web.Server, conv backend.Conversation, ttsClient *tts.Client, sessCfg session.Config, logger *slog.Logger) *daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &daemon{
		server:  server,
		conv:    conv,
		tts:     ttsClient,
		sessCfg: sessCfg,
		logger:  logger.With("component", "daemon"),
	}
}

// wire hooks the daemon into the web server's callbacks.
func (d *daemon) wire() {
	d.server.OnDeviceAttach = d.onDeviceAttach
	d.server.OnDeviceDetach = d.onDeviceDetach
	d.server.OnSessionStart = d.startSession
	d.server.OnSessionStop = d.stopSession
	d.server.OnSessionInterrupt = d.interruptSession
}

func (d *daemon) onDeviceAttach(b *bridge.Bridge) {
	caps, err := b.Handshake(context.Background())
	if err != nil {
		d.logger.Warn("device handshake failed", "error", err)
		b.Close()
		return
	}

	d.mu.Lock()
	if d.controller != nil {
		d.controller.Stop()
		d.controller = nil
	}
	if d.device != nil {
		d.device.Close()
	}
	d.device = b
	d.caps = caps
	d.mu.Unlock()

	d.server.UpdateState(func(v *web.SessionView) {
		v.DeviceConnected = true
		v.DeviceRuntime = string(caps.Runtime)
	})
	d.server.AddLog("state", "device attached: "+string(caps.Runtime))

	// Sessions begin as soon as a device shows up; the dashboard can
	// stop and restart them.
	if err := d.startSession(); err != nil {
		d.logger.Warn("session autostart failed", "error", err)
	}
}

func (d *daemon) onDeviceDetach(b *bridge.Bridge) {
	d.mu.Lock()
	if d.device != b {
		d.mu.Unlock()
		return
	}
	ctrl := d.controller
	d.device = nil
	d.controller = nil
	d.mu.Unlock()

	if ctrl != nil {
		ctrl.Stop()
	}
	d.server.UpdateState(func(v *web.SessionView) {
		v.DeviceConnected = false
		v.DeviceRuntime = ""
	})
	d.server.AddLog("state", "device detached")
}

func (d *daemon) startSession() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return errNoDevice
	}

	if d.controller == nil {
		cfg := d.sessCfg
		cfg.Events = &dashboardSink{
			Server:   d.server,
			tts:      d.tts,
			language: cfg.Language,
			logger:   d.logger,
		}
		cfg.Logger = d.logger
		ctrl, err := session.New(d.device.Capture(), d.device.Synthesizer(), d.conv, cfg)
		if err != nil {
			return err
		}
		d.controller = ctrl
	}

	if err := d.controller.Start(); err != nil {
		return err
	}
	id := d.controller.Status().ID
	d.server.UpdateState(func(v *web.SessionView) {
		v.SessionID = id
	})
	return nil
}

func (d *daemon) stopSession() {
	d.mu.Lock()
	ctrl := d.controller
	d.mu.Unlock()
	if ctrl != nil {
		ctrl.Stop()
	}
}

func (d *daemon) interruptSession() {
	d.mu.Lock()
	ctrl := d.controller
	d.mu.Unlock()
	if ctrl != nil {
		ctrl.Interrupt()
	}
}

func (d *daemon) shutdown() {
	d.mu.Lock()
	ctrl := d.controller
	dev := d.device
	d.controller = nil
	d.device = nil
	d.mu.Unlock()

	if ctrl != nil {
		ctrl.Stop()
	}
	if dev != nil {
		dev.Close()
	}
}

// dashboardSink forwards session events to the dashboard and mirrors
// reply audio to /ws/audio listeners so the shopkeeper can monitor the
// conversation from a browser.
type dashboardSink struct {
	*web.Server
	tts      *tts.Client
	language string
	logger   *slog.Logger
}

func (s *dashboardSink) TurnCompleted(turn session.Turn) {
	s.Server.TurnCompleted(turn)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		res, err := s.tts.Synthesize(ctx, turn.Reply, s.language)
		if err != nil {
			s.logger.Debug("dashboard audio mirror failed", "error", err)
			return
		}
		s.Server.SendAudio(res.Audio)
	}()
}
