package mgmt

import (
	"github.com/gofiber/fiber/v2"

	"github.com/p-blackswan/superclaw/internal/routing"
)

// ListAgents handles GET /api/v1/agents.
func (h *Handlers) ListAgents(c *fiber.Ctx) error {
	agents, err := h.deps.Store.ListAgents(c.UserContext())
	if err != nil {
		return h.errorResponse(c, err)
	}
	if agents == nil {
		agents = []routing.AgentDefinition{}
	}
	return c.JSON(AgentListResponse{Agents: agents, Total: len(agents)})
}

// GetAgent handles GET /api/v1/agents/:id.
func (h *Handlers) GetAgent(c *fiber.Ctx) error {
	a, err := h.deps.Store.GetAgent(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(a)
}

// CreateAgent handles POST /api/v1/agents. An agent is enabled unless the
// body says otherwise; without an id one is generated.
func (h *Handlers) CreateAgent(c *fiber.Ctx) error {
	a := routing.AgentDefinition{Enabled: true}
	if err := c.BodyParser(&a); err != nil {
		return badBody(c, err)
	}

	created, err := h.deps.Store.CreateAgent(c.UserContext(), a)
	if err != nil {
		return h.errorResponse(c, err)
	}
	h.logger.Info().Str("agent", created.ID).Msg("agent created")
	return c.Status(fiber.StatusCreated).JSON(created)
}

// UpdateAgent handles PUT /api/v1/agents/:id. An omitted enabled flag keeps
// the stored value.
func (h *Handlers) UpdateAgent(c *fiber.Ctx) error {
	ctx := c.UserContext()
	current, err := h.deps.Store.GetAgent(ctx, c.Params("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}

	a := routing.AgentDefinition{Enabled: current.Enabled}
	if err := c.BodyParser(&a); err != nil {
		return badBody(c, err)
	}
	a.ID = current.ID

	updated, err := h.deps.Store.UpdateAgent(ctx, a)
	if err != nil {
		return h.errorResponse(c, err)
	}
	h.logger.Info().Str("agent", updated.ID).Msg("agent updated")
	return c.JSON(updated)
}

// SetAgentEnabled handles PATCH /api/v1/agents/:id/enabled.
func (h *Handlers) SetAgentEnabled(c *fiber.Ctx) error {
	var req EnabledRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	if req.Enabled == nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_enabled", "Bad Request",
			"enabled is required")
	}

	ctx := c.UserContext()
	id := c.Params("id")
	if err := h.deps.Store.SetAgentEnabled(ctx, id, *req.Enabled); err != nil {
		return h.errorResponse(c, err)
	}
	a, err := h.deps.Store.GetAgent(ctx, id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	h.logger.Info().Str("agent", id).Bool("enabled", a.Enabled).Msg("agent toggled")
	return c.JSON(a)
}

// DeleteAgent handles DELETE /api/v1/agents/:id.
func (h *Handlers) DeleteAgent(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.deps.Store.DeleteAgent(c.UserContext(), id); err != nil {
		return h.errorResponse(c, err)
	}
	h.logger.Info().Str("agent", id).Msg("agent deleted")
	return c.SendStatus(fiber.StatusNoContent)
}
