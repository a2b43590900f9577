package decoder_test

import (
	"errors"
	"sync"

	"github.com/tauraamui/framecache/pkg/diskcache"
	"github.com/tauraamui/framecache/pkg/pixel"
	"github.com/tauraamui/framecache/pkg/render"
	"github.com/tauraamui/framecache/pkg/render/raster"
)

// countingEngine wraps the raster engine and counts what the decoder asks of it.
type countingEngine struct {
	mu         sync.Mutex
	inner      render.Engine
	surfaceErr error
	surfaces   int
	players    int
	flushes    int
	closed     int
}

func newCountingEngine() *countingEngine {
	return &countingEngine{inner: raster.NewEngine()}
}

func (e *countingEngine) NewOffscreenSurface(w, h int) (render.Surface, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.surfaceErr != nil {
		return nil, e.surfaceErr
	}
	e.surfaces++
	return e.inner.NewOffscreenSurface(w, h)
}

func (e *countingEngine) NewPlayer() render.Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.players++
	return &countingPlayer{Player: e.inner.NewPlayer(), engine: e}
}

func (e *countingEngine) Flushes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushes
}

func (e *countingEngine) Closed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type countingPlayer struct {
	render.Player
	engine *countingEngine
}

func (p *countingPlayer) Flush() error {
	p.engine.mu.Lock()
	p.engine.flushes++
	p.engine.mu.Unlock()
	return p.Player.Flush()
}

func (p *countingPlayer) Close() {
	p.engine.mu.Lock()
	p.engine.closed++
	p.engine.mu.Unlock()
	p.Player.Close()
}

// countingCache wraps a store, counting opens and writes and optionally
// failing either.
type countingCache struct {
	diskcache.Cache
	mu       sync.Mutex
	openErr  error
	writeErr error
	opens    int
	writes   int
	keys     []string
}

func (c *countingCache) OpenSequence(key string, info pixel.Info, numFrames int, frameRate float64) (diskcache.SequenceFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return nil, c.openErr
	}
	seq, err := c.Cache.OpenSequence(key, info, numFrames, frameRate)
	if err != nil {
		return nil, err
	}
	c.opens++
	c.keys = append(c.keys, key)
	return &countingSequence{SequenceFile: seq, cache: c}, nil
}

func (c *countingCache) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

func (c *countingCache) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

type countingSequence struct {
	diskcache.SequenceFile
	cache *countingCache
}

func (s *countingSequence) WriteFrame(index int, src []byte) error {
	s.cache.mu.Lock()
	writeErr := s.cache.writeErr
	s.cache.mu.Unlock()
	if writeErr != nil {
		return writeErr
	}
	if err := s.SequenceFile.WriteFrame(index, src); err != nil {
		return err
	}
	s.cache.mu.Lock()
	s.cache.writes++
	s.cache.mu.Unlock()
	return nil
}

var errInjected = errors.New("injected failure")
