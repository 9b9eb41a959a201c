// Package cache defines the disk-backed blob store that maps a three digit
// cache key onto <CacheDir>/<key>.jpeg. The store exposes read/write/remove
// primitives with safe semantics (temp file + rename) and reports absent
// entries through ErrNotFound so HTTP handlers can tell a miss from an I/O
// failure. All filesystem access goes through an afero.Fs, which lets tests
// swap in memory-backed or read-only filesystems.
package cache
