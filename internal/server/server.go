package server

import (
	"github.com/JGarto/oss-mytracks/internal/auth"
	"github.com/JGarto/oss-mytracks/internal/config"
	"github.com/JGarto/oss-mytracks/internal/recorder"
	"github.com/JGarto/oss-mytracks/internal/stream"
	"github.com/JGarto/oss-mytracks/internal/track"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type Server struct {
	App     *fiber.App
	Cfg     config.Config
	Session *recorder.Session
	Store   *track.Store
	Stream  *stream.Hub
}

func NewServer(cfg config.Config, session *recorder.Session, store *track.Store, hub *stream.Hub) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:     app,
		Cfg:     cfg,
		Session: session,
		Store:   store,
		Stream:  hub,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	recorder.RegisterRoutes(s.App.Group("/recorder"), s.Session, s.Store, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
