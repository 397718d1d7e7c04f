package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voicelink/pkg/hub"
)

// handleStatus returns the current state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

// handleEvents returns recent messages and errors
func (s *Server) handleEvents(c *fiber.Ctx) error {
	return c.JSON(s.Events())
}

// handleMetrics returns turn latencies
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": ErrNoController.Error()})
	}
	m := ctrl.Metrics()
	return c.JSON(fiber.Map{
		"turns":   m.Turns(),
		"current": m.Current(),
		"average": m.Average(),
	})
}

func (s *Server) handleOpen(c *fiber.Ctx) error {
	return s.control(c, func(ctrl Controller) error {
		ctrl.Open()
		return nil
	})
}

func (s *Server) handleClose(c *fiber.Ctx) error {
	return s.control(c, func(ctrl Controller) error {
		ctrl.Close()
		return nil
	})
}

func (s *Server) handleListen(c *fiber.Ctx) error {
	return s.control(c, func(ctrl Controller) error {
		return ctrl.StartListening()
	})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	return s.control(c, func(ctrl Controller) error {
		ctrl.StopListening()
		return nil
	})
}

func (s *Server) handleRetry(c *fiber.Ctx) error {
	return s.control(c, func(ctrl Controller) error {
		return ctrl.Retry()
	})
}

// control runs fn on the event loop and answers with the resulting status.
func (s *Server) control(c *fiber.Ctx, fn func(Controller) error) error {
	err := s.call(fn)
	switch {
	case errors.Is(err, ErrNoController):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrTimeout):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.Status())
}

// handleStatusWS streams status updates, starting with the current one
func (s *Server) handleStatusWS(c *websocket.Conn) {
	s.stream(s.statusHub, c, s.Status())
}

// handleEventsWS streams events, starting with the recorded backlog
func (s *Server) handleEventsWS(c *websocket.Conn) {
	events := s.Events()
	backlog := make([]any, len(events))
	for i, e := range events {
		backlog[i] = e
	}
	s.stream(s.eventHub, c, backlog...)
}

func (s *Server) stream(h *hub.Hub, c *websocket.Conn, initial ...any) {
	msgs := make([]hub.Message, 0, len(initial))
	for _, v := range initial {
		data, err := json.Marshal(v)
		if err != nil {
			s.logger.Warn("encode initial message", "error", err)
			continue
		}
		msgs = append(msgs, data)
	}
	client := hub.NewClient(h, c, msgs...)
	client.Run() // Blocks until disconnect
}
