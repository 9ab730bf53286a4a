package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/firstlinehq/go-dispatch/pkg/session"
)

// handleListCalls returns snapshots of every live session.
func (s *Server) handleListCalls(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"calls": s.registry.List(),
	})
}

// handleGetCall returns one session's full snapshot.
func (s *Server) handleGetCall(c *fiber.Ctx) error {
	sess := s.registry.Get(c.Params("id"))
	if sess == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown call",
		})
	}
	return c.JSON(sess.Snapshot())
}

// ResolveActionRequest is the approval-channel request body.
type ResolveActionRequest struct {
	Decision string `json:"decision"` // "approved" or "rejected"
}

// handleResolveAction applies a dispatcher's decision to a pending action.
func (s *Server) handleResolveAction(c *fiber.Ctx) error {
	var req ResolveActionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed body",
		})
	}

	var decision session.Decision
	switch session.Decision(req.Decision) {
	case session.DecisionApproved, session.DecisionRejected:
		decision = session.Decision(req.Decision)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "decision must be approved or rejected",
		})
	}

	err := s.registry.Resolve(c.Params("id"), c.Params("actionID"), decision)
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown call",
		})
	case errors.Is(err, session.ErrUnknownAction):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown action",
		})
	case errors.Is(err, session.ErrActionResolved):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "action already resolved",
		})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"action_id": c.Params("actionID"),
		"decision":  decision,
	})
}

// ModeResponse reports the process-wide answer mode.
type ModeResponse struct {
	AgentMode bool `json:"agent_mode"`
}

func (s *Server) handleGetMode(c *fiber.Ctx) error {
	return c.JSON(ModeResponse{AgentMode: s.registry.AgentMode()})
}

// handleSetMode flips the toggle for FUTURE calls; live sessions keep the
// mode they opened with.
func (s *Server) handleSetMode(c *fiber.Ctx) error {
	var req ModeResponse
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed body",
		})
	}
	s.registry.SetAgentMode(req.AgentMode)
	return c.JSON(ModeResponse{AgentMode: s.registry.AgentMode()})
}

// handleHealth probes each capability with a short deadline.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	healthy := true
	capabilities := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			capabilities[name] = err.Error()
			healthy = false
		} else {
			capabilities[name] = "ok"
		}
	}

	status := fiber.StatusOK
	if !healthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"healthy":      healthy,
		"active_calls": s.registry.Count(),
		"agent_mode":   s.registry.AgentMode(),
		"capabilities": capabilities,
	})
}
