// Package blob translates cache.Store outcomes into HTTP responses. Every
// operation ends in exactly one response and one outcome log line tagged with
// the cache file name; nothing propagates past the handler.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/imgcache/internal/cache"
	"github.com/any-hub/imgcache/internal/logging"
	"github.com/any-hub/imgcache/internal/server"
)

// ContentType 是缓存条目统一返回的类型。
const ContentType = "image/jpeg"

// Handler 负责 GET/PUT/DELETE 三种操作，不持有任何请求间状态。
type Handler struct {
	logger      *logrus.Logger
	store       cache.Store
	maxBodySize int64
}

// NewHandler constructs a blob handler with shared logger/store.
// maxBodySize <= 0 disables the body size guard.
func NewHandler(logger *logrus.Logger, store cache.Store, maxBodySize int64) *Handler {
	return &Handler{
		logger:      logger,
		store:       store,
		maxBodySize: maxBodySize,
	}
}

// Read 返回完整的缓存正文；缺失为 404，其它错误为 500。
func (h *Handler) Read(c fiber.Ctx, key cache.Key) error {
	result, err := h.store.Get(requestContext(c), key)
	switch {
	case err == nil:
		h.outcome(c, "read", key, logging.OutcomeHit).
			WithField("size_bytes", result.Entry.SizeBytes).
			Info("cache_read")
		c.Set(fiber.HeaderContentType, ContentType)
		return c.Status(fiber.StatusOK).Send(result.Body)
	case errors.Is(err, cache.ErrNotFound):
		h.outcome(c, "read", key, logging.OutcomeMiss).Info("cache_read")
		return server.SendText(c, fiber.StatusNotFound, "not found")
	default:
		h.outcome(c, "read", key, logging.OutcomeError).WithError(err).Error("cache_read_failed")
		return server.SendText(c, fiber.StatusInternalServerError, "internal error: could not read cache entry")
	}
}

// Write 缓冲完整请求体后整体替换缓存文件，成功返回 201。
func (h *Handler) Write(c fiber.Ctx, key cache.Key) error {
	// 原样保存请求字节，不按 Content-Encoding 解码。
	body := c.Request().Body()
	if h.maxBodySize > 0 && int64(len(body)) > h.maxBodySize {
		h.outcome(c, "write", key, logging.OutcomeError).
			WithField("size_bytes", len(body)).
			Warn("cache_write_too_large")
		return server.SendText(c, fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("payload too large: limit is %d bytes", h.maxBodySize))
	}

	entry, err := h.store.Put(requestContext(c), key, bytes.NewReader(body))
	if err != nil {
		h.outcome(c, "write", key, logging.OutcomeError).WithError(err).Error("cache_write_failed")
		return server.SendText(c, fiber.StatusInternalServerError, "internal error: could not store cache entry")
	}

	h.outcome(c, "write", key, logging.OutcomeStored).
		WithField("size_bytes", entry.SizeBytes).
		Info("cache_write")
	return server.SendText(c, fiber.StatusCreated, fmt.Sprintf("stored /%s", key))
}

// Delete 删除缓存文件；缺失为 404，其它错误为 500。
func (h *Handler) Delete(c fiber.Ctx, key cache.Key) error {
	err := h.store.Remove(requestContext(c), key)
	switch {
	case err == nil:
		h.outcome(c, "delete", key, logging.OutcomeDeleted).Info("cache_delete")
		return server.SendText(c, fiber.StatusOK, fmt.Sprintf("deleted /%s", key))
	case errors.Is(err, cache.ErrNotFound):
		h.outcome(c, "delete", key, logging.OutcomeMiss).Info("cache_delete")
		return server.SendText(c, fiber.StatusNotFound, "not found")
	default:
		h.outcome(c, "delete", key, logging.OutcomeError).WithError(err).Error("cache_delete_failed")
		return server.SendText(c, fiber.StatusInternalServerError, "internal error: could not delete cache entry")
	}
}

func (h *Handler) outcome(c fiber.Ctx, op string, key cache.Key, outcome logging.Outcome) *logrus.Entry {
	return h.logger.WithFields(logging.OutcomeFields(op, key.FileName(), outcome)).
		WithField("request_id", server.RequestID(c))
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
