package mgmt

import (
	"github.com/gofiber/fiber/v2"

	"github.com/p-blackswan/superclaw/internal/routing"
)

// ListRules handles GET /api/v1/rules. Rules are returned in list order,
// which breaks ties between equal priorities.
func (h *Handlers) ListRules(c *fiber.Ctx) error {
	rules, err := h.deps.Store.ListRules(c.UserContext())
	if err != nil {
		return h.errorResponse(c, err)
	}
	if rules == nil {
		rules = []routing.RoutingRule{}
	}
	return c.JSON(RuleListResponse{Rules: rules, Total: len(rules)})
}

// GetRule handles GET /api/v1/rules/:id.
func (h *Handlers) GetRule(c *fiber.Ctx) error {
	r, err := h.deps.Store.GetRule(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(r)
}

// CreateRule handles POST /api/v1/rules. A rule is enabled unless the body
// says otherwise.
func (h *Handlers) CreateRule(c *fiber.Ctx) error {
	r := routing.RoutingRule{Enabled: true}
	if err := c.BodyParser(&r); err != nil {
		return badBody(c, err)
	}

	created, err := h.deps.Store.CreateRule(c.UserContext(), r)
	if err != nil {
		return h.errorResponse(c, err)
	}
	h.logger.Info().Str("rule", created.ID).Int("priority", created.Priority).Msg("rule created")
	return c.Status(fiber.StatusCreated).JSON(created)
}

// UpdateRule handles PUT /api/v1/rules/:id. An omitted enabled flag keeps
// the stored value.
func (h *Handlers) UpdateRule(c *fiber.Ctx) error {
	ctx := c.UserContext()
	current, err := h.deps.Store.GetRule(ctx, c.Params("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}

	r := routing.RoutingRule{Enabled: current.Enabled}
	if err := c.BodyParser(&r); err != nil {
		return badBody(c, err)
	}
	r.ID = current.ID

	updated, err := h.deps.Store.UpdateRule(ctx, r)
	if err != nil {
		return h.errorResponse(c, err)
	}
	h.logger.Info().Str("rule", updated.ID).Msg("rule updated")
	return c.JSON(updated)
}

// SetRuleEnabled handles PATCH /api/v1/rules/:id/enabled. The next
// classification sees the change.
func (h *Handlers) SetRuleEnabled(c *fiber.Ctx) error {
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
	if err := h.deps.Store.SetRuleEnabled(ctx, id, *req.Enabled); err != nil {
		return h.errorResponse(c, err)
	}
	r, err := h.deps.Store.GetRule(ctx, id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	h.logger.Info().Str("rule", id).Bool("enabled", r.Enabled).Msg("rule toggled")
	return c.JSON(r)
}

// DeleteRule handles DELETE /api/v1/rules/:id.
func (h *Handlers) DeleteRule(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.deps.Store.DeleteRule(c.UserContext(), id); err != nil {
		return h.errorResponse(c, err)
	}
	h.logger.Info().Str("rule", id).Msg("rule deleted")
	return c.SendStatus(fiber.StatusNoContent)
}
