package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rcliao/mnemosyne/internal/auth"
)

// MCPPath is where the streamable HTTP endpoint is mounted.
const MCPPath = "/mcp"

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPDeps are the collaborators of the HTTP app.
type HTTPDeps struct {
	MCP    *server.MCPServer
	Auth   *auth.Authenticator
	Health Pinger
	Logger *slog.Logger
}

// NewApp builds the fiber app serving /healthz and the MCP endpoint.
func NewApp(d HTTPDeps) *fiber.App {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "mnemosyne",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))
	app.Use(requestLogger(log))

	app.Get("/healthz", healthHandler(d.Health))

	streamable := server.NewStreamableHTTPServer(d.MCP,
		server.WithEndpointPath(MCPPath),
		server.WithStateLess(true),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			id, err := d.Auth.FromRequest(r)
			if err != nil {
				return ctx
			}
			return auth.WithIdentity(ctx, id)
		}),
	)
	app.All(MCPPath, requireIdentity(d.Auth, log), adaptor.HTTPHandler(streamable))

	return app
}

// ListenHTTP serves app on addr until ctx is cancelled.
func ListenHTTP(ctx context.Context, app *fiber.App, addr string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- app.Listen(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			return err
		}
		return <-errCh
	}
}

// requireIdentity rejects requests without a usable identity.
func requireIdentity(a *auth.Authenticator, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		_, err := a.Authenticate(c.Get(fiber.HeaderAuthorization), c.Get(auth.HeaderUser), c.Get(auth.HeaderSpace))
		if err != nil {
			log.Warn("rejected unauthenticated request",
				"request_id", c.GetRespHeader(fiber.HeaderXRequestID), "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthenticated",
				"message": err.Error(),
			})
		}
		return c.Next()
	}
}

func healthHandler(p Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := p.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	}
}

func requestLogger(log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		log.Info("http request",
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency", time.Since(start),
		)
		return err
	}
}

func errorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("request failed",
				"request_id", c.GetRespHeader(fiber.HeaderXRequestID), "path", c.Path(), "error", err)
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}
