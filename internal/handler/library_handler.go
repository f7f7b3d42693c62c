package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/service"
)

// LibraryManager maintains the vector library.
type LibraryManager interface {
	Select(ctx context.Context) ([]domain.VectorRecord, error)
	Start(done func(*service.InitializeReport, error)) error
	Clean(ctx context.Context) (int64, error)
}

// LibraryHandler serves the vector library maintenance routes.
type LibraryHandler struct {
	library LibraryManager
	jobs    *JobTracker
}

// NewLibraryHandler creates a library handler. Builds started through it
// are tracked in jobs.
func NewLibraryHandler(library LibraryManager, jobs *JobTracker) *LibraryHandler {
	return &LibraryHandler{library: library, jobs: jobs}
}

// Register mounts the library routes.
func (h *LibraryHandler) Register(router fiber.Router) {
	router.Get("/SelectDB", h.Select)
	router.Post("/Initialize", h.Initialize)
	router.Delete("/CleanDB", h.Clean)
}

// Select dumps the vector library.
func (h *LibraryHandler) Select(c fiber.Ctx) error {
	records, err := h.library.Select(c.Context())
	if err != nil {
		slog.Error("failed to select vector library", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if records == nil {
		records = []domain.VectorRecord{}
	}
	return c.JSON(records)
}

// Initialize starts a background library build and returns immediately
// with the id of the job tracking it.
func (h *LibraryHandler) Initialize(c fiber.Ctx) error {
	id := uuid.NewString()
	h.jobs.CreateJob(id)
	err := h.library.Start(func(report *service.InitializeReport, err error) {
		h.jobs.FinishJob(id, report, err)
	})
	if err != nil {
		h.jobs.FinishJob(id, nil, err)
		if errors.Is(err, service.ErrInitializeRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "executing", "job": id})
}

// Clean empties the vector library.
func (h *LibraryHandler) Clean(c fiber.Ctx) error {
	n, err := h.library.Clean(c.Context())
	if err != nil {
		slog.Error("failed to clean vector library", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"deleted": n})
}
