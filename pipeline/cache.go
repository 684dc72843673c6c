package pipeline

import (
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vbg-go/service/lgr"
)

type cacheEntry struct {
	once sync.Once
	mat  gocv.Mat
	err  error
}

// BackdropCache holds the static backgrounds of a session. Each entry is
// written once under its own sync.Once and is read-only afterwards.
type BackdropCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

func NewBackdropCache() *BackdropCache {
	return &BackdropCache{
		entries: map[string]*cacheEntry{},
	}
}

// Get returns the background for the strategy. When owned is true the caller
// must close the Mat; cached Mats belong to the cache and must not be mutated.
func (c *BackdropCache) Get(b Backdrop, bctx BackdropContext) (bg gocv.Mat, owned bool, err error) {
	if !b.Cacheable() {
		bg, err = b.Produce(bctx)
		return bg, err == nil, err
	}

	key := fmt.Sprintf("%s@%dx%d", b.Key(), bctx.Width, bctx.Height)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{}
		c.entries[key] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.mat, entry.err = b.Produce(bctx)
		lgr.Logger.Debug(
			"static background produced",
			slog.String("key", key),
			slog.Bool("ok", entry.err == nil),
		)
	})

	return entry.mat, false, entry.err
}

func (c *BackdropCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *BackdropCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if entry.err == nil {
			entry.mat.Close()
		}
		delete(c.entries, key)
	}
}
