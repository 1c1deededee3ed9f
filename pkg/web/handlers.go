package web

import (
	"bytes"
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-spotter/pkg/camera"
	"github.com/teslashibe/go-spotter/pkg/hub"
)

// handleStatus returns the current status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

// handleCapture issues the capture command. An ignored command is not an
// error for the caller; it answers 409 with the state that caused it.
func (s *Server) handleCapture(c *fiber.Ctx) error {
	reply, err := s.capture()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if !reply.Accepted {
		return c.Status(fiber.StatusConflict).JSON(reply)
	}
	return c.Status(fiber.StatusAccepted).JSON(reply)
}

// handleFrame serves the latest annotated frame as JPEG
func (s *Server) handleFrame(c *fiber.Ctx) error {
	img := s.latestFrame()
	if img == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no frame yet",
		})
	}
	data, err := s.encode(img)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(data)
}

// handleGetCamera returns the camera configuration
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Camera.GetConfig())
}

// handleUpdateCamera applies a partial camera configuration
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	var params map[string]any
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()
	if err := dec.Decode(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON body",
		})
	}

	if err := s.cfg.Camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.logger.Info("camera config updated", "params", params)
	return c.JSON(s.cfg.Camera.GetConfig())
}

// handleCameraCapabilities returns the accepted camera ranges
func (s *Server) handleCameraCapabilities(c *fiber.Ctx) error {
	return c.JSON(camera.Capabilities())
}

// statusMessage is the welcome message for /ws/status clients.
func (s *Server) statusMessage() (hub.Message, bool) {
	data, err := json.Marshal(s.Status())
	if err != nil {
		return hub.Message{}, false
	}
	return hub.NewJSONMessage(data), true
}

// handleStatusMessage handles text commands from /ws/status clients.
func (s *Server) handleStatusMessage(client *hub.Client, data []byte) {
	cmd := string(bytes.TrimSpace(data))
	if cmd != CommandCapture {
		s.logger.Debug("unknown ws command", "command", cmd)
		return
	}
	reply, err := s.capture()
	if err != nil {
		return
	}
	if b, err := json.Marshal(reply); err == nil {
		client.Send(hub.NewJSONMessage(b))
	}
}
