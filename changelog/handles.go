package changelog

import (
	"context"
	"encoding/json"
	"log/slog"
	"path"
	"sync"

	"github.com/adrg/xdg"

	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/fs"
)

// HandleCacheFile is the cache file, relative to the XDG cache home.
const HandleCacheFile = "rlsr/github-handles.json"

// UserSearcher finds a forge login by email. An empty login means no user
// matched.
type UserSearcher interface {
	SearchUserByEmail(ctx context.Context, email string) (string, error)
}

// HandleCache resolves commit emails to forge handles, remembering found
// handles in memory and, when a path is set, on disk across runs.
type HandleCache struct {
	searcher UserSearcher
	fs       fs.Filesystem
	path     string
	logger   *slog.Logger

	mu      sync.Mutex
	handles map[string]string
	misses  map[string]struct{}
	dirty   bool
}

// HandleCacheOption configures a HandleCache.
type HandleCacheOption func(*HandleCache)

// WithCacheFile persists found handles to p on fsys.
func WithCacheFile(fsys fs.Filesystem, p string) HandleCacheOption {
	return func(h *HandleCache) {
		h.fs = fsys
		h.path = p
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *slog.Logger) HandleCacheOption {
	return func(h *HandleCache) {
		h.logger = logger
	}
}

// DefaultHandleCachePath returns the cache file under the XDG cache home,
// creating its directory.
func DefaultHandleCachePath() (string, error) {
	return xdg.CacheFile(HandleCacheFile)
}

// NewHandleCache creates a cache in front of searcher and loads the cache
// file if one is configured. A missing or unreadable file starts empty.
func NewHandleCache(searcher UserSearcher, opts ...HandleCacheOption) *HandleCache {
	h := &HandleCache{
		searcher: searcher,
		logger:   slog.Default(),
		handles:  make(map[string]string),
		misses:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.load()
	return h
}

func (h *HandleCache) load() {
	if h.fs == nil || h.path == "" {
		return
	}
	data, err := h.fs.ReadFile(h.path)
	if err != nil {
		return
	}
	var stored map[string]string
	if err := json.Unmarshal(data, &stored); err != nil {
		h.logger.Warn("ignoring corrupt handle cache", "path", h.path, "error", err)
		return
	}
	for k, v := range stored {
		h.handles[k] = v
	}
}

// Resolve returns the handle for email, or email itself when no user
// matches.
func (h *HandleCache) Resolve(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", nil
	}

	h.mu.Lock()
	if handle, ok := h.handles[email]; ok {
		h.mu.Unlock()
		return handle, nil
	}
	if _, miss := h.misses[email]; miss {
		h.mu.Unlock()
		return email, nil
	}
	h.mu.Unlock()

	login, err := h.searcher.SearchUserByEmail(ctx, email)
	if err != nil {
		return "", errors.WrapWithContext(err, errors.CodeChangelogFailed, "failed to resolve handle",
			map[string]interface{}{"email": email})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if login == "" {
		h.misses[email] = struct{}{}
		return email, nil
	}
	h.handles[email] = login
	h.dirty = true
	return login, nil
}

// Save writes found handles to the cache file when anything changed.
func (h *HandleCache) Save() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fs == nil || h.path == "" || !h.dirty {
		return nil
	}
	data, err := json.MarshalIndent(h.handles, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to encode handle cache")
	}
	if err := h.fs.MkdirAll(path.Dir(h.path), 0o755); err != nil {
		return errors.Wrap(err, errors.CodeChangelogFailed, "failed to create handle cache directory")
	}
	if err := h.fs.WriteFile(h.path, data, 0o644); err != nil {
		return errors.WrapWithContext(err, errors.CodeChangelogFailed, "failed to write handle cache",
			map[string]interface{}{"path": h.path})
	}
	h.dirty = false
	return nil
}
