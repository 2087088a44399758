package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/delivery-service/internal/auth"
	"github.com/fathima-sithara/delivery-service/internal/domain"
	"github.com/fathima-sithara/delivery-service/internal/media"
	"github.com/fathima-sithara/delivery-service/internal/metric"
	"github.com/fathima-sithara/delivery-service/internal/presence"
	"github.com/fathima-sithara/delivery-service/internal/service"
	"github.com/fathima-sithara/delivery-service/internal/ws"
)

type Deps struct {
	Commands *service.CommandService
	Contacts *service.ContactsService
	Registry *presence.Registry
	// Images is nil when attachment storage is not configured.
	Images *media.ImageService
	// JWT is nil when auth is disabled; callers then identify with X-User-ID.
	JWT *auth.JWTValidator
	// WS is nil to serve the request path only.
	WS *ws.Server
	// LastSeen is the Redis presence mirror; nil when Redis is disabled.
	LastSeen LastSeenReader

	MaxUploadBytes int64
	RequestTimeout time.Duration
}

func NewServer(d Deps, log *zap.Logger) *fiber.App {
	log = log.Named("api")
	bodyLimit := 4 * 1024 * 1024
	if d.MaxUploadBytes > 0 && int(d.MaxUploadBytes)+(1<<20) > bodyLimit {
		bodyLimit = int(d.MaxUploadBytes) + (1 << 20)
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 5 * time.Second
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})
	app.Use(recover.New())
	app.Use(accessLog(log))

	h := &Handlers{
		cmd:      d.Commands,
		contacts: d.Contacts,
		registry: d.Registry,
		lastSeen: d.LastSeen,
		images:   d.Images,
		maxBytes: d.MaxUploadBytes,
		timeout:  d.RequestTimeout,
	}

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/metrics", adaptor.HTTPHandler(metric.Handler()))

	api := app.Group("/v1")

	// the websocket authenticates with ?token= and is mounted ahead of the
	// header-based auth below
	if d.WS != nil {
		api.Get("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		api.Get("/ws", websocket.New(d.WS.HandleWS()))
	}

	api.Use(authenticate(d.JWT))

	api.Post("/messages", h.createMessage)
	api.Post("/messages/attachments", h.uploadAttachment)
	api.Post("/messages/mark-read/:counterpartId", h.markConversationRead)
	api.Post("/messages/:id/read", h.markRead)
	api.Post("/messages/:id/delivered", h.markDelivered)
	api.Get("/messages/:counterpartId", h.history)
	api.Get("/contacts/recent", h.recentContacts)
	api.Get("/presence/:userId", h.presence)

	return app
}

const localUser = "user_id"

func authenticate(jv *auth.JWTValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if jv == nil {
			uid := c.Get("X-User-ID")
			if uid == "" {
				return fiber.NewError(fiber.StatusUnauthorized, "missing X-User-ID")
			}
			c.Locals(localUser, uid)
			return c.Next()
		}
		token, err := auth.ParseBearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		sub, err := jv.Validate(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals(localUser, sub)
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) string {
	uid, _ := c.Locals(localUser).(string)
	return uid
}

func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := statusFor(err)
		msg := err.Error()
		switch code {
		case http.StatusServiceUnavailable:
			log.Error("store unavailable", zap.String("path", c.Path()), zap.Error(err))
			msg = "service temporarily unavailable"
		case http.StatusInternalServerError:
			log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
			msg = "internal error"
		}
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}

func accessLog(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			status = statusFor(err)
		}
		log.Debug("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)))
		return err
	}
}
