package handlers

import (
	"errors"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/voice-annotation/internal/database"
	"github.com/codebuildervaibhav/voice-annotation/internal/storage"
)

// ProjectHandler serves project CRUD
type ProjectHandler struct {
	repo         database.Repository
	workspaceDir string
}

func NewProjectHandler(repo database.Repository, workspaceDir string) *ProjectHandler {
	return &ProjectHandler{repo: repo, workspaceDir: workspaceDir}
}

// CreateProjectRequest represents the request body
type CreateProjectRequest struct {
	Name        string `json:"project_name"`
	Description string `json:"description"`
}

func (h *ProjectHandler) List(c *fiber.Ctx) error {
	projects, err := h.repo.ListProjects(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(projects)
}

func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body", "ERR_INVALID_BODY")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return jsonError(c, fiber.StatusBadRequest, "Project name is required", "ERR_NO_NAME")
	}

	workspace := path.Join(h.workspaceDir, storage.SanitizeName(name))
	project, err := h.repo.CreateProject(c.UserContext(), name, strings.TrimSpace(req.Description), workspace)
	if errors.Is(err, database.ErrProjectExists) {
		return jsonError(c, fiber.StatusConflict, "Project name already exists", "ERR_PROJECT_EXISTS")
	}
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(project)
}
