package handler

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/service"
)

// SimilarityResolver runs the similar-item pipeline.
type SimilarityResolver interface {
	Resolve(ctx context.Context, in domain.ImageInput) (domain.ItemsByOrigin, error)
}

// SimilarityHandler serves POST /SimilarItems.
type SimilarityHandler struct {
	resolver   SimilarityResolver
	defaultTop int
}

// NewSimilarityHandler creates a handler. defaultTop is used when the
// request does not say how many similar items it wants.
func NewSimilarityHandler(resolver SimilarityResolver, defaultTop int) *SimilarityHandler {
	return &SimilarityHandler{resolver: resolver, defaultTop: defaultTop}
}

// Register mounts the similarity route.
func (h *SimilarityHandler) Register(router fiber.Router) {
	router.Post("/SimilarItems", h.SimilarItems)
}

type similarRequest struct {
	URL          string `json:"url"`
	SimilarItems int    `json:"similarItems"`
}

// SimilarItems accepts either a JSON body {"url", "similarItems"} or a
// multipart form carrying the image file.
func (h *SimilarityHandler) SimilarItems(c fiber.Ctx) error {
	in := domain.ImageInput{TopN: h.defaultTop}

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid multipart form"})
		}
		fh := pickFile(form)
		if fh == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "an image file is required"})
		}
		f, err := fh.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "can't read uploaded file"})
		}
		defer f.Close()
		in.Upload = f
		if v := formValue(form, "similarItems"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				in.TopN = n
			}
		}
		slog.Info("similar items requested", "upload", fh.Filename, "size", fh.Size)
	} else {
		var req similarRequest
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.URL == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url or image file is required"})
		}
		in.SourceURL = req.URL
		if req.SimilarItems > 0 {
			in.TopN = req.SimilarItems
		}
		slog.Info("similar items requested", "url", req.URL)
	}

	items, err := h.resolver.Resolve(c.Context(), in)
	if err != nil {
		return pipelineFailure(c, err)
	}
	return c.JSON(items)
}

// pickFile prefers the "file" and "image" fields, then any uploaded file.
func pickFile(form *multipart.Form) *multipart.FileHeader {
	for _, name := range []string{"file", "image"} {
		if fhs := form.File[name]; len(fhs) > 0 {
			return fhs[0]
		}
	}
	for _, fhs := range form.File {
		if len(fhs) > 0 {
			return fhs[0]
		}
	}
	return nil
}

func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// pipelineFailure renders a failed resolution as HTTP 500.
func pipelineFailure(c fiber.Ctx, err error) error {
	var perr *service.PipelineError
	if !errors.As(err, &perr) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	body := fiber.Map{"stage": perr.Stage, "message": perr.Message}
	if perr.Err != nil {
		body["cause"] = perr.Err.Error()
	}
	return c.Status(fiber.StatusInternalServerError).JSON(body)
}
