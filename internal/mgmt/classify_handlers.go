package mgmt

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/p-blackswan/superclaw/internal/routing"
	"github.com/p-blackswan/superclaw/internal/store"
)

// Route handles POST /api/v1/route.
func (h *Handlers) Route(c *fiber.Ctx) error {
	var req RouteRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	if req.Message == nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_message", "Bad Request",
			"Message is required")
	}

	ctx := c.UserContext()
	d, err := h.deps.Dispatch.Route(ctx, store.SourceAPI, routing.Input{
		Text:    *req.Message,
		Channel: req.Channel,
		Sender:  req.Sender,
	})
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(RouteResponse{Decision: d, Agent: h.lookupAgent(ctx, d.AgentID)})
}

// Assign handles POST /api/v1/assign. It only scores; use POST /tasks to
// store an assigned task.
func (h *Handlers) Assign(c *fiber.Ctx) error {
	var req AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	if strings.TrimSpace(req.Title) == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_title", "Bad Request",
			"Title is required")
	}

	ctx := c.UserContext()
	a, err := h.deps.Dispatch.Assign(ctx, store.SourceAPI, req.Title, req.Description)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(AssignResponse{Assignment: a, Agent: h.lookupAgent(ctx, a.AgentID)})
}

// RoutingLog handles GET /api/v1/routing/log.
func (h *Handlers) RoutingLog(c *fiber.Ctx) error {
	classifier := c.Query("classifier")
	if classifier != "" && classifier != routing.ClassifierRouter && classifier != routing.ClassifierPorter {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_classifier", "Bad Request",
			"classifier must be router or porter")
	}

	entries, err := h.deps.Store.ListRoutingLog(c.UserContext(), classifier, c.QueryInt("limit", 100))
	if err != nil {
		return h.errorResponse(c, err)
	}
	if entries == nil {
		entries = []store.RoutingLogEntry{}
	}
	return c.JSON(RoutingLogResponse{Entries: entries, Total: len(entries)})
}
