package server

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/leontalbot/caribou/internal/instrument"
	"github.com/leontalbot/caribou/internal/model"
)

// Handler serves the dynamic content API. Every route resolves its model by
// the slug in the path at request time, so models created a moment ago are
// immediately addressable.
type Handler struct {
	engine *model.Engine
}

func NewHandler(eng *model.Engine) *Handler {
	return &Handler{engine: eng}
}

// Health handles GET /health
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Models handles GET /_models
func (h *Handler) Models(c *fiber.Ctx) error {
	out := make([]fiber.Map, 0)
	for _, m := range h.engine.Models() {
		fields := make([]fiber.Map, 0, len(m.Fields))
		for _, f := range m.FieldsInOrder() {
			row := f.Row()
			entry := fiber.Map{"slug": row.Slug, "type": row.Type}
			if row.TargetID != 0 {
				entry["target_id"] = row.TargetID
			}
			fields = append(fields, entry)
		}
		out = append(out, fiber.Map{
			"id":     m.ID,
			"name":   m.Name,
			"slug":   m.Slug,
			"nested": m.Nested,
			"fields": fields,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

// Ops handles GET /_ops
func (h *Handler) Ops(c *fiber.Ctx) error {
	ops := h.engine.Ops(c.QueryInt("limit", 50))
	if ops == nil {
		ops = []instrument.Op{}
	}
	return c.JSON(fiber.Map{"data": ops})
}

// List handles GET /api/:model
func (h *Handler) List(c *fiber.Ctx) error {
	rows, err := h.engine.Rally(c.Context(), c.Params("model"), readOpts(c))
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []model.Content{}
	}
	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{"count": len(rows)},
	})
}

// Get handles GET /api/:model/:id
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	row, err := h.engine.Choose(c.Context(), c.Params("model"), id, readOpts(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// Create handles POST /api/:model
func (h *Handler) Create(c *fiber.Ctx) error {
	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "invalid JSON body")
	}
	row, err := h.engine.Create(c.Context(), c.Params("model"), body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": row})
}

// Update handles PUT /api/:model/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "invalid JSON body")
	}
	// The path id is authoritative.
	delete(body, "id")
	row, err := h.engine.Update(c.Context(), c.Params("model"), id, body)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// Delete handles DELETE /api/:model/:id and returns the destroyed row.
func (h *Handler) Delete(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	row, err := h.engine.Destroy(c.Context(), c.Params("model"), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// Progenitors handles GET /api/:model/:id/progenitors
func (h *Handler) Progenitors(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	rows, err := h.engine.Progenitors(c.Context(), c.Params("model"), id, readOpts(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

// Descendents handles GET /api/:model/:id/descendents
func (h *Handler) Descendents(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	rows, err := h.engine.Descendents(c.Context(), c.Params("model"), id, readOpts(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

func readOpts(c *fiber.Ctx) model.Opts {
	return model.Opts{
		Include: model.ParseInclude(c.Query("include")),
		OrderBy: c.Query("order_by"),
		Order:   c.Query("order"),
		Limit:   c.QueryInt("limit", 0),
		Offset:  c.QueryInt("offset", 0),
	}
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, NewAppError("INVALID_ID", fiber.StatusBadRequest,
			fmt.Sprintf("invalid id %q", c.Params("id")))
	}
	return id, nil
}
