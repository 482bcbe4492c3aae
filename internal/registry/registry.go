package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yungbote/triage-backend/internal/gnn"
	"github.com/yungbote/triage-backend/internal/platform/logger"
)

var ErrModelUnavailable = errors.New("registry: model unavailable")

// Loader turns a checkpoint path into a model.
type Loader func(path string) (*gnn.Model, error)

// LoadObserver receives the outcome of every real (non-cached) load.
type LoadObserver interface {
	ObserveModelLoad(path string, d time.Duration, err error)
}

type Info struct {
	Path        string          `json:"path"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	LoadedAt    time.Time       `json:"loaded_at"`
	Config      gnn.ModelConfig `json:"config"`
}

type entry struct {
	model *gnn.Model
	info  Info
}

// Registry caches loaded models per checkpoint path. Concurrent first loads of
// the same path share one load; failed loads are not cached.
type Registry struct {
	log      *logger.Logger
	load     Loader
	observer LoadObserver

	group  singleflight.Group
	models sync.Map // path -> *entry
}

type Option func(*Registry)

func WithLoader(l Loader) Option { return func(r *Registry) { r.load = l } }

func WithObserver(o LoadObserver) Option { return func(r *Registry) { r.observer = o } }

func New(log *logger.Logger, opts ...Option) *Registry {
	r := &Registry{log: log.With("component", "ModelRegistry"), load: gnn.LoadCheckpoint}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) GetOrLoad(ctx context.Context, path string) (*gnn.Model, error) {
	if v, ok := r.models.Load(path); ok {
		return v.(*entry).model, nil
	}
	ch := r.group.DoChan(path, func() (any, error) {
		if v, ok := r.models.Load(path); ok {
			return v.(*entry), nil
		}
		return r.loadEntry(path)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entry).model, nil
	}
}

func (r *Registry) loadEntry(path string) (*entry, error) {
	start := time.Now()
	m, err := r.load(path)
	if err == nil && m == nil {
		err = errors.New("loader returned no model")
	}
	if r.observer != nil {
		r.observer.ObserveModelLoad(path, time.Since(start), err)
	}
	if err != nil {
		r.log.Warn("checkpoint load failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, path, err)
	}
	e := &entry{
		model: m,
		info: Info{
			Path:        path,
			Fingerprint: fingerprint(path),
			LoadedAt:    time.Now().UTC(),
			Config:      m.Config,
		},
	}
	r.models.Store(path, e)
	r.log.Info("checkpoint loaded",
		"path", path,
		"fingerprint", e.info.Fingerprint,
		"relations", len(m.Config.RelNames),
		"duration", time.Since(start),
	)
	return e, nil
}

// Preload warms path. A failure is logged and returned but is not fatal to
// callers; the next GetOrLoad retries.
func (r *Registry) Preload(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	if _, err := r.GetOrLoad(ctx, path); err != nil {
		r.log.Warn("checkpoint preload failed, will retry on first request", "path", path, "error", err)
		return err
	}
	return nil
}

func (r *Registry) Loaded(path string) (Info, bool) {
	if r == nil {
		return Info{}, false
	}
	v, ok := r.models.Load(path)
	if !ok {
		return Info{}, false
	}
	return v.(*entry).info, true
}

func (r *Registry) Info() []Info {
	out := []Info{}
	if r == nil {
		return out
	}
	r.models.Range(func(_, v any) bool {
		out = append(out, v.(*entry).info)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// fingerprint is the sha256 of the checkpoint file, empty when it cannot be read
// (for instance with an injected loader).
func fingerprint(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}
