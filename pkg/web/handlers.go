package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/kiranaai/go-kirana/pkg/hub"
	"github.com/kiranaai/go-kirana/pkg/speech/bridge"
)

// handleStatus returns the current session view
func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return c.JSON(s.state)
}

// handleGetLogs returns recent log entries
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// handleGetConversation returns recent conversation
func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	s.conversationMu.RLock()
	defer s.conversationMu.RUnlock()
	return c.JSON(s.conversation)
}

// handleSessionStart begins a voice session on the attached device
func (s *Server) handleSessionStart(c *fiber.Ctx) error {
	if s.OnSessionStart == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no session configured",
		})
	}
	if err := s.OnSessionStart(); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"started": true})
}

// handleSessionStop ends the voice session
func (s *Server) handleSessionStop(c *fiber.Ctx) error {
	if s.OnSessionStop == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no session configured",
		})
	}
	s.OnSessionStop()
	return c.JSON(fiber.Map{"stopped": true})
}

// handleSessionInterrupt cuts in-flight speech playback
func (s *Server) handleSessionInterrupt(c *fiber.Ctx) error {
	if s.OnSessionInterrupt == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no session configured",
		})
	}
	s.OnSessionInterrupt()
	return c.JSON(fiber.Map{"interrupted": true})
}

// handleLogsWS streams live log entries
func (s *Server) handleLogsWS(c *websocket.Conn) {
	// Replay buffered logs before joining the live stream
	s.logsMu.RLock()
	var replayErr error
	for _, entry := range s.logs {
		if replayErr = c.WriteJSON(entry); replayErr != nil {
			break
		}
	}
	s.logsMu.RUnlock()
	if replayErr != nil {
		s.logger.Debug("log replay aborted", "error", replayErr)
		c.Close()
		return
	}

	hub.NewClient(s.logHub, c).Run()
}

// handleStatusWS streams session view updates
func (s *Server) handleStatusWS(c *websocket.Conn) {
	s.stateMu.RLock()
	err := c.WriteJSON(s.state)
	s.stateMu.RUnlock()
	if err != nil {
		s.logger.Debug("status replay aborted", "error", err)
		c.Close()
		return
	}

	hub.NewClient(s.statusHub, c).Run()
}

// handleAudioWS streams synthesized audio chunks
func (s *Server) handleAudioWS(c *websocket.Conn) {
	hub.NewClient(s.audioHub, c).Run()
}

// handleDeviceWS hands the connection to a speech bridge. The handler
// blocks for the lifetime of the device connection.
func (s *Server) handleDeviceWS(c *websocket.Conn) {
	b := bridge.New(c, s.logger)
	s.logger.Info("device connecting", "remote", c.RemoteAddr().String())

	if s.OnDeviceAttach != nil {
		go s.OnDeviceAttach(b)
	}
	b.Run()
	if s.OnDeviceDetach != nil {
		s.OnDeviceDetach(b)
	}
}
