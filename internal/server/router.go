package server

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/imgcache/internal/cache"
	"github.com/any-hub/imgcache/internal/logging"
	"github.com/any-hub/imgcache/internal/metrics"
)

// BlobHandler performs the storage operation for an already validated key
// and writes the HTTP response. It allows injecting fake handlers during tests.
type BlobHandler interface {
	Read(fiber.Ctx, cache.Key) error
	Write(fiber.Ctx, cache.Key) error
	Delete(fiber.Ctx, cache.Key) error
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger  *logrus.Logger
	Handler BlobHandler
	// Metrics is optional; nil skips HTTP instrumentation.
	Metrics     *metrics.Metrics
	MaxBodySize int64
}

const contextKeyRequestID = "_imgcache_request_id"

// AllowedMethods is advertised through the Allow header on 405 responses.
const AllowedMethods = "GET, PUT, DELETE"

// InvalidPathMessage is the 400 body for requests outside the /XXX contract.
const InvalidPathMessage = "invalid path: expected /XXX where XXX is a three digit code, e.g. /200"

// RequestMethods 是 Fiber 会路由到 dispatch 的全部方法：标准方法加常见的
// WebDAV/缓存扩展方法，使它们同样得到 400/405 而不是 Fiber 的 501。
// 列表之外的方法仍由 Fiber 直接返回 501。
var RequestMethods = []string{
	fiber.MethodGet,
	fiber.MethodHead,
	fiber.MethodPost,
	fiber.MethodPut,
	fiber.MethodDelete,
	fiber.MethodConnect,
	fiber.MethodOptions,
	fiber.MethodTrace,
	fiber.MethodPatch,
	"PROPFIND",
	"PROPPATCH",
	"MKCOL",
	"COPY",
	"MOVE",
	"LOCK",
	"UNLOCK",
	"REPORT",
	"SEARCH",
	"PURGE",
	"LINK",
	"UNLINK",
	"QUERY",
}

// NewApp builds a Fiber application with request ID, optional metrics and the
// /XXX dispatcher.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("blob handler is required")
	}
	if opts.MaxBodySize <= 0 {
		return nil, fmt.Errorf("invalid max body size: %d", opts.MaxBodySize)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive:  true,
		StrictRouting:  true,
		BodyLimit:      int(opts.MaxBodySize),
		RequestMethods: RequestMethods,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))
	if opts.Metrics != nil {
		app.Use(opts.Metrics.Middleware())
	}
	app.Use(dispatch(opts))

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并记录进入的 method + 原始路径。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		logger.WithFields(logging.RequestFields(c.Method(), c.OriginalURL(), reqID)).Info("request")
		return c.Next()
	}
}

// dispatch 校验路径后按 method 分派；路径校验先于 method 校验。
func dispatch(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		rawURI := c.OriginalURL()
		key, err := cache.ParseKey(rawURI)
		if err != nil {
			opts.Logger.WithFields(logging.RequestFields(c.Method(), rawURI, RequestID(c))).
				Info("invalid_path")
			return SendText(c, fiber.StatusBadRequest, InvalidPathMessage)
		}

		switch c.Method() {
		case fiber.MethodGet:
			return opts.Handler.Read(c, key)
		case fiber.MethodPut:
			return opts.Handler.Write(c, key)
		case fiber.MethodDelete:
			return opts.Handler.Delete(c, key)
		default:
			opts.Logger.WithFields(logging.RequestFields(c.Method(), rawURI, RequestID(c))).
				Info("method_not_allowed")
			c.Set(fiber.HeaderAllow, AllowedMethods)
			return SendText(c, fiber.StatusMethodNotAllowed,
				fmt.Sprintf("method %s not allowed, use %s", c.Method(), AllowedMethods))
		}
	}
}

// SendText writes a plain-text response with the given status.
func SendText(c fiber.Ctx, status int, body string) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(status).SendString(body)
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
