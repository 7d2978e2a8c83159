package mgmt

import (
	"github.com/gofiber/fiber/v2"

	"github.com/p-blackswan/superclaw/internal/store"
)

// ListTasks handles GET /api/v1/tasks.
func (h *Handlers) ListTasks(c *fiber.Ctx) error {
	status := c.Query("status")
	if status != "" && !store.ValidTaskStatus(status) {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_status", "Bad Request",
			"Unknown task status: "+status)
	}

	filter := store.TaskFilter{
		Status:  status,
		AgentID: c.Query("agent"),
		Limit:   c.QueryInt("limit", 50),
	}
	tasks, err := h.deps.Store.ListTasks(c.UserContext(), filter)
	if err != nil {
		return h.errorResponse(c, err)
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	return c.JSON(TaskListResponse{Tasks: tasks, Total: len(tasks), Limit: filter.Limit})
}

// GetTask handles GET /api/v1/tasks/:id.
func (h *Handlers) GetTask(c *fiber.Ctx) error {
	t, err := h.deps.Store.GetTask(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(TaskResponse{Task: t})
}

// CreateTask handles POST /api/v1/tasks.
func (h *Handlers) CreateTask(c *fiber.Ctx) error {
	var req CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}

	t, err := h.deps.Dispatch.CreateTask(c.UserContext(), store.SourceAPI, store.Task{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		AgentID:     req.AgentID,
	})
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(TaskResponse{Task: t})
}

// UpdateTaskStatus handles PATCH /api/v1/tasks/:id/status.
func (h *Handlers) UpdateTaskStatus(c *fiber.Ctx) error {
	var req TaskStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}

	ctx := c.UserContext()
	id := c.Params("id")
	if err := h.deps.Store.UpdateTaskStatus(ctx, id, req.Status); err != nil {
		return h.errorResponse(c, err)
	}
	t, err := h.deps.Store.GetTask(ctx, id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(TaskResponse{Task: t})
}

// ReassignTask handles POST /api/v1/tasks/:id/reassign. Porter re-scores
// the task against the current agents.
func (h *Handlers) ReassignTask(c *fiber.Ctx) error {
	ctx := c.UserContext()
	t, err := h.deps.Store.GetTask(ctx, c.Params("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	if _, err := h.deps.Dispatch.Reassign(ctx, t); err != nil {
		return h.errorResponse(c, err)
	}
	t, err = h.deps.Store.GetTask(ctx, t.ID)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(TaskResponse{Task: t})
}
