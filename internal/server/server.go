package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/leontalbot/caribou/internal/model"
)

// Server is the HTTP face of an engine.
type Server struct {
	app *fiber.App
	log *zap.Logger
}

func New(eng *model.Engine, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "caribou",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	registerRoutes(app, NewHandler(eng))
	return &Server{app: app, log: log}
}

func registerRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", h.Health)
	app.Get("/_models", h.Models)
	app.Get("/_ops", h.Ops)

	api := app.Group("/api")
	api.Get("/:model", h.List)
	api.Post("/:model", h.Create)
	api.Get("/:model/:id", h.Get)
	api.Put("/:model/:id", h.Update)
	api.Delete("/:model/:id", h.Delete)
	api.Get("/:model/:id/progenitors", h.Progenitors)
	api.Get("/:model/:id/descendents", h.Descendents)
}

func (s *Server) Listen(addr string) error {
	s.log.Info("http listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
