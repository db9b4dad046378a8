package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/biosecret/go-tasks/apperror"
	"github.com/biosecret/go-tasks/middleware"
	"github.com/biosecret/go-tasks/models"
)

// userID returns the id stored by the auth middleware.
func userID(c *fiber.Ctx) (string, error) {
	user := middleware.CurrentUser(c)
	if user == nil {
		return "", apperror.New(apperror.KindUnauthorized, "Unauthorized access")
	}
	return user.ID, nil
}

// hideForbidden answers another user's task as missing so ids of foreign
// tasks cannot be probed.
func hideForbidden(err error) error {
	if apperror.Is(err, apperror.KindForbidden) {
		return apperror.NotFound("Task")
	}
	return err
}

// HandleAllTasks godoc
// @Summary      List the caller's tasks
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   models.Task
// @Failure      401  {object}  models.ErrorResponse
// @Router       /api/tasks [get]
func (h *Handlers) HandleAllTasks(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	tasks, err := h.tasks.List(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(tasks)
}

// HandleCreateTask godoc
// @Summary      Create a task
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      models.CreateTaskInput  true  "New task"
// @Success      201   {object}  models.Task
// @Failure      400   {object}  models.ErrorResponse
// @Failure      401   {object}  models.ErrorResponse
// @Router       /api/tasks [post]
func (h *Handlers) HandleCreateTask(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	var in models.CreateTaskInput
	if err := parseBody(c, &in); err != nil {
		return err
	}

	task, err := h.tasks.Create(c.UserContext(), uid, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(task)
}

// HandleGetOneTask godoc
// @Summary      Get one task
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Task ID"
// @Success      200  {object}  models.Task
// @Failure      404  {object}  models.ErrorResponse
// @Router       /api/tasks/{id} [get]
func (h *Handlers) HandleGetOneTask(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	task, err := h.tasks.Get(c.UserContext(), uid, c.Params("id"))
	if err != nil {
		return hideForbidden(err)
	}
	return c.Status(fiber.StatusOK).JSON(task)
}

// HandleUpdateTask godoc
// @Summary      Update a task
// @Description  Only the fields present in the body change. Explicit false, empty and null values are applied; a null dueDate clears it.
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string            true  "Task ID"
// @Param        body  body      models.TaskPatch  true  "Fields to change"
// @Success      200   {object}  models.Task
// @Failure      400   {object}  models.ErrorResponse
// @Failure      404   {object}  models.ErrorResponse
// @Router       /api/tasks/{id} [put]
// @Router       /api/tasks/{id} [patch]
func (h *Handlers) HandleUpdateTask(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	var patch models.TaskPatch
	if err := parseBody(c, &patch); err != nil {
		return err
	}

	task, err := h.tasks.Update(c.UserContext(), uid, c.Params("id"), patch)
	if err != nil {
		return hideForbidden(err)
	}
	return c.Status(fiber.StatusOK).JSON(task)
}

// HandleDeleteTask godoc
// @Summary      Delete a task
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Task ID"
// @Success      200  {object}  models.MessageResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /api/tasks/{id} [delete]
func (h *Handlers) HandleDeleteTask(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	if err := h.tasks.Delete(c.UserContext(), uid, c.Params("id")); err != nil {
		return hideForbidden(err)
	}
	return c.Status(fiber.StatusOK).JSON(models.MessageResponse{Message: "Task removed"})
}
