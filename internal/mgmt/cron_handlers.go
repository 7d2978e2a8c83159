package mgmt

import (
	"github.com/gofiber/fiber/v2"

	perrors "github.com/p-blackswan/superclaw/internal/errors"
	"github.com/p-blackswan/superclaw/internal/scheduler"
	"github.com/p-blackswan/superclaw/internal/store"
)

func validSchedule(spec string) error {
	if _, err := scheduler.ParseSchedule(spec); err != nil {
		return perrors.Invalid("cron job", "schedule", err.Error())
	}
	return nil
}

// ListCronJobs handles GET /api/v1/cron.
func (h *Handlers) ListCronJobs(c *fiber.Ctx) error {
	jobs, err := h.deps.Store.ListCronJobs(c.UserContext())
	if err != nil {
		return h.errorResponse(c, err)
	}
	if jobs == nil {
		jobs = []store.CronJob{}
	}
	return c.JSON(CronJobListResponse{Jobs: jobs, Total: len(jobs)})
}

// GetCronJob handles GET /api/v1/cron/:id.
func (h *Handlers) GetCronJob(c *fiber.Ctx) error {
	j, err := h.deps.Store.GetCronJob(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(j)
}

// CreateCronJob handles POST /api/v1/cron.
func (h *Handlers) CreateCronJob(c *fiber.Ctx) error {
	var req CronJobRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	j := req.job()
	if err := validSchedule(j.Schedule); err != nil {
		return h.errorResponse(c, err)
	}

	ctx := c.UserContext()
	created, err := h.deps.Store.CreateCronJob(ctx, j)
	if err != nil {
		return h.errorResponse(c, err)
	}
	h.reloadScheduler(ctx)
	h.logger.Info().Str("job", created.ID).Str("schedule", created.Schedule).Msg("cron job created")
	return c.Status(fiber.StatusCreated).JSON(created)
}

// UpdateCronJob handles PUT /api/v1/cron/:id.
func (h *Handlers) UpdateCronJob(c *fiber.Ctx) error {
	var req CronJobRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	j := req.job()
	j.ID = c.Params("id")
	if err := validSchedule(j.Schedule); err != nil {
		return h.errorResponse(c, err)
	}

	ctx := c.UserContext()
	updated, err := h.deps.Store.UpdateCronJob(ctx, j)
	if err != nil {
		return h.errorResponse(c, err)
	}
	h.reloadScheduler(ctx)
	return c.JSON(updated)
}

// SetCronJobEnabled handles PATCH /api/v1/cron/:id/enabled.
func (h *Handlers) SetCronJobEnabled(c *fiber.Ctx) error {
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
	if err := h.deps.Store.SetCronJobEnabled(ctx, id, *req.Enabled); err != nil {
		return h.errorResponse(c, err)
	}
	h.reloadScheduler(ctx)

	j, err := h.deps.Store.GetCronJob(ctx, id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(j)
}

// DeleteCronJob handles DELETE /api/v1/cron/:id.
func (h *Handlers) DeleteCronJob(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	if err := h.deps.Store.DeleteCronJob(ctx, id); err != nil {
		return h.errorResponse(c, err)
	}
	h.reloadScheduler(ctx)
	return c.SendStatus(fiber.StatusNoContent)
}
