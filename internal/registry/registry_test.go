package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/triage-backend/internal/gnn"
	"github.com/yungbote/triage-backend/internal/platform/logger"
)

func TestGetOrLoadCollapsesConcurrentLoads(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	r := New(logger.Nop(), WithLoader(func(path string) (*gnn.Model, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &gnn.Model{Config: gnn.ModelConfig{InDim: 8}}, nil
	}))

	var wg sync.WaitGroup
	models := make([]*gnn.Model, 8)
	for i := range models {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := r.GetOrLoad(context.Background(), "a.json")
			if err != nil {
				t.Errorf("load: %v", err)
			}
			models[i] = m
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("loader calls=%d want 1", got)
	}
	for _, m := range models[1:] {
		if m != models[0] {
			t.Fatalf("callers received different models")
		}
	}
	if _, err := r.GetOrLoad(context.Background(), "a.json"); err != nil || atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("cached load hit the loader: calls=%d err=%v", atomic.LoadInt32(&calls), err)
	}
	if info, ok := r.Loaded("a.json"); !ok || info.Config.InDim != 8 {
		t.Fatalf("info=%+v ok=%v", info, ok)
	}
}

func TestFailedLoadIsNotCached(t *testing.T) {
	fail := true
	r := New(logger.Nop(), WithLoader(func(path string) (*gnn.Model, error) {
		if fail {
			return nil, errors.New("missing file")
		}
		return &gnn.Model{}, nil
	}))

	_, err := r.GetOrLoad(context.Background(), "b.json")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err=%v", err)
	}
	if len(r.Info()) != 0 {
		t.Fatalf("failure was cached")
	}
	fail = false
	if _, err := r.GetOrLoad(context.Background(), "b.json"); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

type loadCounter struct {
	ok, failed int
}

func (c *loadCounter) ObserveModelLoad(path string, d time.Duration, err error) {
	if err != nil {
		c.failed++
		return
	}
	c.ok++
}

func TestPreloadReportsToObserver(t *testing.T) {
	obs := &loadCounter{}
	r := New(logger.Nop(), WithObserver(obs), WithLoader(func(path string) (*gnn.Model, error) {
		if path == "bad" {
			return nil, errors.New("nope")
		}
		return &gnn.Model{}, nil
	}))
	if err := r.Preload(context.Background(), "good"); err != nil {
		t.Fatalf("preload: %v", err)
	}
	if err := r.Preload(context.Background(), "bad"); err == nil {
		t.Fatalf("expected error")
	}
	if err := r.Preload(context.Background(), ""); err != nil {
		t.Fatalf("empty path: %v", err)
	}
	if obs.ok != 1 || obs.failed != 1 {
		t.Fatalf("observer=%+v", obs)
	}
}
