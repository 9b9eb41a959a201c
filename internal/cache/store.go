package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<CacheDir>/<key>.jpeg    # 最近一次 PUT 的原始字节
//
// 除文件本身外不记录任何元数据，Size/ModTime 由文件系统提供。
type Store interface {
	// Get 读取完整正文。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, key Key) (*ReadResult, error)

	// Put 将 body 写入缓存并覆盖旧值。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败时清理临时文件。
	Put(ctx context.Context, key Key, body io.Reader) (*Entry, error)

	// Remove 删除正文文件。若不存在则返回 ErrNotFound。
	Remove(ctx context.Context, key Key) error
}

// Observer 接收每次存储操作的结果，metrics.StorageMetrics 实现了该接口。
type Observer interface {
	Observe(op, result string, bytes int64, dur time.Duration)
}

// Entry 描述缓存目录中的一个条目。
type Entry struct {
	Key       Key       `json:"key"`
	FileName  string    `json:"file_name"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合 Entry 与完整正文。
type ReadResult struct {
	Entry Entry
	Body  []byte
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

const (
	opRead   = "read"
	opWrite  = "write"
	opDelete = "delete"
)

const (
	resultOK    = "ok"
	resultMiss  = "miss"
	resultError = "error"
)
