package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，整站复用一份实例。
// observer 可以为 nil。
func NewStore(fsys afero.Fs, basePath string, observer Observer) (Store, error) {
	if fsys == nil {
		return nil, errors.New("filesystem required")
	}
	if basePath == "" {
		return nil, errors.New("cache directory required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve cache directory: %w", err)
	}

	info, err := fsys.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := fsys.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("stat cache directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("cache directory %s is not a directory", abs)
	}

	return &fileStore{
		fs:       fsys,
		basePath: abs,
		observer: observer,
	}, nil
}

// fileStore 不做任何跨请求加锁：同一 key 的并发写以最后一次 rename 为准。
type fileStore struct {
	fs       afero.Fs
	basePath string
	observer Observer
}

func (s *fileStore) Get(ctx context.Context, key Key) (result *ReadResult, err error) {
	started := time.Now()
	defer func() { s.observe(opRead, started, err, resultSize(result)) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath := s.entryPath(key)
	body, err := afero.ReadFile(s.fs, filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key.FileName(), err)
	}

	entry := Entry{
		Key:       key,
		FileName:  key.FileName(),
		SizeBytes: int64(len(body)),
	}
	if info, statErr := s.fs.Stat(filePath); statErr == nil {
		entry.ModTime = info.ModTime()
	}

	return &ReadResult{Entry: entry, Body: body}, nil
}

func (s *fileStore) Put(ctx context.Context, key Key, body io.Reader) (entry *Entry, err error) {
	started := time.Now()
	defer func() {
		var size int64
		if entry != nil {
			size = entry.SizeBytes
		}
		s.observe(opWrite, started, err, size)
	}()

	filePath := s.entryPath(key)

	tempFile, err := afero.TempFile(s.fs, s.basePath, ".cache-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file for %s: %w", key.FileName(), err)
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(tempName)
		return nil, fmt.Errorf("write %s: %w", key.FileName(), err)
	}

	if err := s.fs.Rename(tempName, filePath); err != nil {
		_ = s.fs.Remove(tempName)
		return nil, fmt.Errorf("replace %s: %w", key.FileName(), err)
	}

	modTime := time.Now().UTC()
	if info, statErr := s.fs.Stat(filePath); statErr == nil {
		modTime = info.ModTime()
	}

	return &Entry{
		Key:       key,
		FileName:  key.FileName(),
		SizeBytes: written,
		ModTime:   modTime,
	}, nil
}

func (s *fileStore) Remove(ctx context.Context, key Key) (err error) {
	started := time.Now()
	defer func() { s.observe(opDelete, started, err, 0) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.fs.Remove(s.entryPath(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove %s: %w", key.FileName(), err)
	}
	return nil
}

func (s *fileStore) entryPath(key Key) string {
	return filepath.Join(s.basePath, key.FileName())
}

func (s *fileStore) observe(op string, started time.Time, err error, size int64) {
	if s.observer == nil {
		return
	}
	result := resultOK
	switch {
	case errors.Is(err, ErrNotFound):
		result = resultMiss
	case err != nil:
		result = resultError
	}
	s.observer.Observe(op, result, size, time.Since(started))
}

func resultSize(result *ReadResult) int64 {
	if result == nil {
		return 0
	}
	return result.Entry.SizeBytes
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
