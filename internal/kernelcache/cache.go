// Package kernelcache compiles kernel source on demand and caches compiled
// modules, in memory and optionally on disk. Concurrent requests for the
// same key share a single compilation; distinct keys compile independently.
package kernelcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/norda-ml/norda/internal/device"
)

// Cache wraps a device's compiler with keyed memoization.
type Cache struct {
	dev device.Device
	dir string // "" disables the on-disk layer

	mu      sync.RWMutex
	modules map[string]device.Module

	group singleflight.Group
}

// New creates a cache over dev. When dir is non-empty, compiled artifacts
// are persisted there and reloaded on later misses.
func New(dev device.Device, dir string) *Cache {
	return &Cache{
		dev:     dev,
		dir:     dir,
		modules: make(map[string]device.Module),
	}
}

// key derives the cache key from source text, compile options, and target
// architecture. Everything that affects codegen participates.
func key(source string, opts device.CompileOptions) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(opts.Entry))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(opts.Options, "\x00")))
	h.Write([]byte{0})
	h.Write([]byte(opts.Arch))
	return hex.EncodeToString(h.Sum(nil))
}

// Compile returns a compiled module for the given source and options. On a
// hit the previously compiled module is returned without touching the
// compiler. Compilation failures surface to every waiting caller and are
// never retried automatically.
func (c *Cache) Compile(ctx context.Context, source string, opts device.CompileOptions) (device.Module, error) {
	k := key(source, opts)

	c.mu.RLock()
	mod, ok := c.modules[k]
	c.mu.RUnlock()
	if ok {
		return mod, nil
	}

	v, err, _ := c.group.Do(k, func() (any, error) {
		// A racing caller may have populated the map while we queued.
		c.mu.RLock()
		mod, ok := c.modules[k]
		c.mu.RUnlock()
		if ok {
			return mod, nil
		}

		mod, err := c.load(ctx, k, source, opts)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.modules[k] = mod
		c.mu.Unlock()
		return mod, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(device.Module), nil
}

// load resolves a miss: try the on-disk artifact first, then the compiler.
func (c *Cache) load(ctx context.Context, k, source string, opts device.CompileOptions) (device.Module, error) {
	if c.dir != "" {
		if bin, err := os.ReadFile(c.artifactPath(k)); err == nil {
			if mod, err := c.dev.LoadBinary(bin); err == nil {
				slog.Debug("kernel cache disk hit", "entry", opts.Entry, "key", k[:12])
				return mod, nil
			}
			// A stale or foreign artifact falls through to recompilation.
		}
	}

	slog.Debug("compiling kernel", "entry", opts.Entry, "arch", opts.Arch, "key", k[:12])
	mod, err := c.dev.Compile(ctx, source, opts)
	if err != nil {
		return nil, err
	}

	if c.dir != "" {
		if bin := mod.Binary(); bin != nil {
			if err := c.persist(k, bin); err != nil {
				// The module itself is good; losing the disk copy only
				// costs a recompile next process.
				slog.Warn("kernel cache persist failed", "entry", opts.Entry, "error", err)
			}
		}
	}
	return mod, nil
}

func (c *Cache) artifactPath(k string) string {
	return filepath.Join(c.dir, k+".kmod")
}

func (c *Cache) persist(k string, bin []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.dir, k+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(bin); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.artifactPath(k))
}

// Function is a convenience wrapper that compiles (or fetches) the module
// and resolves its entry point in one call.
func (c *Cache) Function(ctx context.Context, source string, opts device.CompileOptions) (device.Kernel, error) {
	mod, err := c.Compile(ctx, source, opts)
	if err != nil {
		return nil, err
	}
	kern, err := mod.Function(opts.Entry)
	if err != nil {
		return nil, fmt.Errorf("resolving kernel entry %q: %w", opts.Entry, err)
	}
	return kern, nil
}
