package diskcache

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tauraamui/framecache/pkg/database/models"
	"github.com/tauraamui/framecache/pkg/database/repos"
	"github.com/tauraamui/framecache/pkg/log"
	"github.com/tauraamui/framecache/pkg/pixel"
	"github.com/tauraamui/xerror"
)

// frameStore persists the frames of a single sequence.
type frameStore interface {
	// readFrame fills dst, which is exactly one frame long.
	readFrame(index int, dst []byte) error
	// writeFrame stores src and records present as the new presence state.
	writeFrame(index int, src []byte, present *bitmap) error
	close() error
	discard() error
}

type sequence struct {
	mu        sync.Mutex
	id        string
	key       string
	info      pixel.Info
	numFrames int
	frameRate float64
	present   *bitmap
	frames    frameStore
	catalog   *repos.SequenceRepository
	refs      int
	done      bool
}

func newSequence(
	id, key string, info pixel.Info, numFrames int, frameRate float64,
	frames frameStore, present *bitmap, catalog *repos.SequenceRepository,
) *sequence {
	s := &sequence{
		id:        id,
		key:       key,
		info:      info,
		numFrames: numFrames,
		frameRate: frameRate,
		present:   present,
		frames:    frames,
		catalog:   catalog,
	}
	s.track()
	return s
}

func (s *sequence) temporary() bool {
	return len(s.key) == 0
}

func (s *sequence) track() {
	if s.catalog == nil {
		return
	}
	err := s.catalog.Track(&models.Sequence{
		UUID:      s.id,
		CacheKey:  s.key,
		Width:     s.info.Width,
		Height:    s.info.Height,
		ColorType: uint8(s.info.ColorType),
		AlphaType: uint8(s.info.AlphaType),
		RowBytes:  s.info.RowBytes,
		NumFrames: s.numFrames,
		FrameRate: s.frameRate,
		Complete:  s.present.full(),
	})
	if err != nil {
		log.Warn("Unable to record sequence in catalog: %v", err)
	}
}

// shutdown closes the frame store, discarding it when temporary.
func (s *sequence) shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true

	err := s.frames.close()
	if !s.temporary() {
		return err
	}
	if derr := s.frames.discard(); derr != nil && err == nil {
		err = derr
	}
	if s.catalog != nil {
		if cerr := s.catalog.DeleteByUUID(s.id); cerr != nil {
			log.Warn("Unable to remove temporary sequence from catalog: %v", cerr)
		}
	}
	return err
}

// handle is one caller's view of a shared sequence.
type handle struct {
	seq    *sequence
	reg    *registry
	closed atomic.Bool
}

func (h *handle) Info() pixel.Info   { return h.seq.info }
func (h *handle) NumFrames() int     { return h.seq.numFrames }
func (h *handle) FrameRate() float64 { return h.seq.frameRate }

func (h *handle) checkIndex(index int) error {
	if h.closed.Load() {
		return ErrSequenceClosed
	}
	if index < 0 || index >= h.seq.numFrames {
		return xerror.Errorf("%w: %d not in [0, %d)", ErrFrameOutOfRange, index, h.seq.numFrames)
	}
	return nil
}

func (h *handle) ReadFrame(index int, dst []byte) error {
	if err := h.checkIndex(index); err != nil {
		return err
	}
	s := h.seq
	size := s.info.ByteSize()
	if len(dst) < size {
		return xerror.Errorf("%w: %d bytes, need %d", ErrBufferSize, len(dst), size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrSequenceClosed
	}
	if !s.present.has(index) {
		return xerror.Errorf("%w: %d", ErrFrameNotCached, index)
	}
	if err := s.frames.readFrame(index, dst[:size]); err != nil {
		// forget the frame so the next write replaces it
		s.present.unmark(index)
		log.Warn("Unable to read cached frame %d of sequence %s: %v", index, s.id, err)
		return xerror.Errorf("%w: %d: %v", ErrFrameNotCached, index, err)
	}
	return nil
}

func (h *handle) WriteFrame(index int, src []byte) error {
	if err := h.checkIndex(index); err != nil {
		return err
	}
	s := h.seq
	size := s.info.ByteSize()
	if len(src) < size {
		return xerror.Errorf("%w: %d bytes, need %d", ErrBufferSize, len(src), size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrSequenceClosed
	}
	if s.present.has(index) {
		return nil
	}
	s.present.mark(index)
	if err := s.frames.writeFrame(index, src[:size], s.present); err != nil {
		s.present.unmark(index)
		return xerror.Errorf("unable to write frame %d of sequence %s: %w", index, s.id, err)
	}
	if s.present.full() && s.catalog != nil {
		if err := s.catalog.MarkComplete(s.id); err != nil {
			log.Warn("Unable to mark sequence complete in catalog: %v", err)
		}
	}
	return nil
}

func (h *handle) IsComplete() bool {
	h.seq.mu.Lock()
	defer h.seq.mu.Unlock()
	return h.seq.present.full()
}

func (h *handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	return h.reg.release(h.seq)
}

// registry shares open sequences between handles by id.
type registry struct {
	mu     sync.Mutex
	open   map[string]*sequence
	closed bool
}

func newRegistry() *registry {
	return &registry{open: map[string]*sequence{}}
}

func (r *registry) acquire(id string, create func() (*sequence, error)) (*handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrCacheClosed
	}

	s, ok := r.open[id]
	if !ok {
		var err error
		if s, err = create(); err != nil {
			return nil, err
		}
		r.open[id] = s
	}
	s.refs++
	return &handle{seq: s, reg: r}, nil
}

func (r *registry) release(s *sequence) error {
	r.mu.Lock()
	s.refs--
	last := s.refs <= 0
	if last && r.open[s.id] == s {
		delete(r.open, s.id)
	}
	r.mu.Unlock()

	if !last {
		return nil
	}
	return s.shutdown()
}

// forget stops sharing the open sequences of key, their handles stay usable.
func (r *registry) forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.open {
		if s.key == key {
			delete(r.open, id)
		}
	}
}

func (r *registry) closeAll() error {
	r.mu.Lock()
	open := r.open
	r.open = map[string]*sequence{}
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for _, s := range open {
		if err := s.shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// forgetCatalog drops the catalog entries of key.
func forgetCatalog(catalog *repos.SequenceRepository, key string) {
	if catalog == nil {
		return
	}
	seqs, err := catalog.FindByKey(key)
	if err != nil {
		log.Warn("Unable to look up sequences of %s in catalog: %v", key, err)
		return
	}
	for _, seq := range seqs {
		if err := catalog.DeleteByUUID(seq.UUID); err != nil {
			log.Warn("Unable to remove sequence %s from catalog: %v", seq.UUID, err)
		}
	}
}
