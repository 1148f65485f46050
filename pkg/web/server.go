// Package web provides the shopkeeper-facing dashboard and the device
// websocket endpoint.
//
// The dashboard shows the live session state, the running conversation,
// and recent logs. Devices (the mobile app or a browser tab) connect on
// /ws/device and are handed to pkg/speech/bridge.
package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/kiranaai/go-kirana/pkg/hub"
	"github.com/kiranaai/go-kirana/pkg/speech/bridge"
)

// SessionView is the dashboard's snapshot of the voice session.
type SessionView struct {
	SessionID       string `json:"session_id"`
	State           string `json:"state"`
	Active          bool   `json:"active"`
	Transcript      string `json:"transcript"`
	LastResponse    string `json:"last_response"`
	Error           string `json:"error,omitempty"`
	Turns           int    `json:"turns"`
	DeviceConnected bool   `json:"device_connected"`
	DeviceRuntime   string `json:"device_runtime,omitempty"`
}

// LogEntry represents a log line for the dashboard
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // state, speech, turn, error
	Message string `json:"message"`
}

// ConversationEntry represents a message in the conversation
type ConversationEntry struct {
	Time    string `json:"time"`
	Role    string `json:"role"` // user, assistant
	Message string `json:"message"`
}

// Server is the dashboard and device-endpoint server
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	// State
	state   SessionView
	stateMu sync.RWMutex

	// Log buffer (last 500 entries)
	logs   []LogEntry
	logsMu sync.RWMutex

	// Conversation buffer (last 100 entries)
	conversation   []ConversationEntry
	conversationMu sync.RWMutex

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	logHub    *hub.Hub
	audioHub  *hub.Hub

	// OnDeviceAttach is called with each freshly connected device
	// bridge, before its read loop starts.
	OnDeviceAttach func(b *bridge.Bridge)

	// OnDeviceDetach is called after the device's read loop exits.
	OnDeviceDetach func(b *bridge.Bridge)

	// Session controls wired by the daemon.
	OnSessionStart     func() error
	OnSessionStop      func()
	OnSessionInterrupt func()
}

// NewServer creates a new dashboard server
func NewServer(port string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		port:         port,
		logger:       logger.With("component", "web"),
		logs:         make([]LogEntry, 0, 500),
		conversation: make([]ConversationEntry, 0, 100),
		statusHub:    hub.New("status", logger),
		logHub:       hub.New("logs", logger),
		audioHub:     hub.New("audio", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Kirana Voice Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// Static files
	app.Static("/", "./web")

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/logs", s.handleGetLogs)
	api.Get("/conversation", s.handleGetConversation)
	api.Post("/session/start", s.handleSessionStart)
	api.Post("/session/stop", s.handleSessionStop)
	api.Post("/session/interrupt", s.handleSessionInterrupt)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/audio", websocket.New(s.handleAudioWS))
	app.Get("/ws/device", websocket.New(s.handleDeviceWS))

	s.app = app
	return s
}

// Start starts the web server
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "addr", "http://localhost:"+s.port)

	// Start all hubs
	go s.statusHub.Run()
	go s.logHub.Run()
	go s.audioHub.Run()

	return s.app.Listen(":" + s.port)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server error", "error", err)
		}
	}()
}

// UpdateState mutates the session view and broadcasts it to clients
func (s *Server) UpdateState(update func(*SessionView)) {
	s.stateMu.Lock()
	update(&s.state)
	state := s.state // copy for broadcast
	s.stateMu.Unlock()

	s.statusHub.BroadcastJSON(state)
}

// State returns a copy of the current session view.
func (s *Server) State() SessionView {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// AddLog adds a log entry and broadcasts to clients
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > 500 {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON(entry)
}

// AddConversation adds a conversation entry
func (s *Server) AddConversation(role, message string) {
	entry := ConversationEntry{
		Time:    time.Now().Format("15:04:05"),
		Role:    role,
		Message: message,
	}

	s.conversationMu.Lock()
	s.conversation = append(s.conversation, entry)
	if len(s.conversation) > 100 {
		s.conversation = s.conversation[1:]
	}
	s.conversationMu.Unlock()
}

// SendAudio broadcasts synthesized MP3 audio to dashboard clients for
// in-browser playback.
func (s *Server) SendAudio(mp3Data []byte) {
	s.audioHub.BroadcastBinary(mp3Data)
}

// Shutdown gracefully stops the web server and all hubs
func (s *Server) Shutdown() error {
	s.statusHub.Stop()
	s.logHub.Stop()
	s.audioHub.Stop()
	return s.app.Shutdown()
}
