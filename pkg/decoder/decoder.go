// Package decoder exposes the frames of a composition as pixel buffers,
// caching every rendered frame in a sequence store so that later reads of
// the same frame skip rendering.
package decoder

import (
	"errors"
	"math"
	"sync"

	"github.com/tauraamui/framecache/pkg/composition"
	"github.com/tauraamui/framecache/pkg/diskcache"
	"github.com/tauraamui/framecache/pkg/log"
	"github.com/tauraamui/framecache/pkg/metrics"
	"github.com/tauraamui/framecache/pkg/pixel"
	"github.com/tauraamui/framecache/pkg/render"
	"github.com/tauraamui/framecache/pkg/render/raster"
	"github.com/tauraamui/xerror"
)

const (
	DefaultMaxFrameRate = 30
	DefaultScale        = 1
)

var (
	ErrCompositionDetached = xerror.New("composition is no longer attached to the decoder")
	ErrPixelFormatMismatch = xerror.New("pixel format differs from the format of the first read")
	ErrIndexOutOfRange     = xerror.New("frame index out of range")
	ErrInvalidPixelFormat  = xerror.New("invalid pixel format")
	ErrBufferTooSmall      = xerror.New("pixel buffer too small")
	ErrOpenSequence        = xerror.New("unable to open sequence file")
	ErrRender              = xerror.New("unable to render frame")
	ErrDecoderClosed       = xerror.New("decoder is closed")
)

type Settings struct {
	// MaxFrameRate caps the frame rate frames are decoded at.
	MaxFrameRate float64
	// Scale is applied to the composition size to give the frame size.
	Scale  float64
	Engine render.Engine
	Cache  diskcache.Cache
}

type Decoder interface {
	Width() int
	Height() int
	NumFrames() int
	FrameRate() float64
	// ReadFrame fills dst with frame index laid out as format. Every call
	// on a decoder must use the format of the first successful call.
	ReadFrame(index int, dst []byte, format pixel.Format) error
	Ownership() Ownership
	Close() error
}

type decoder struct {
	mu           sync.Mutex
	width        int
	height       int
	numFrames    int
	frameRate    float64
	maxFrameRate float64
	lastVersion  uint64
	lastFormat   pixel.Format
	container    *composition.Composition
	engine       render.Engine
	cache        diskcache.Cache
	sequence     diskcache.SequenceFile
	player       render.Player
	playerComp   *composition.Composition
	ownership    Ownership
	closed       bool
}

// MakeFrom returns a decoder over comp, or nil when comp or the settings
// cache is nil. The decoder registers itself as a holder of comp.
func MakeFrom(comp *composition.Composition, settings Settings) Decoder {
	if comp == nil {
		log.Error("Unable to create decoder: composition is nil")
		return nil
	}
	if settings.Cache == nil {
		log.Error("Unable to create decoder: sequence cache is nil")
		return nil
	}
	if settings.MaxFrameRate <= 0 {
		settings.MaxFrameRate = DefaultMaxFrameRate
	}
	if settings.Scale <= 0 {
		settings.Scale = DefaultScale
	}
	if settings.Engine == nil {
		settings.Engine = raster.NewEngine()
	}

	width := int(math.Round(float64(comp.Width()) * settings.Scale))
	height := int(math.Round(float64(comp.Height()) * settings.Scale))
	numFrames, frameRate := FrameCountAndRate(comp, settings.MaxFrameRate)

	d := decoder{
		width:        width,
		height:       height,
		numFrames:    numFrames,
		frameRate:    frameRate,
		maxFrameRate: settings.MaxFrameRate,
		container:    composition.NewContainer(width, height),
		engine:       settings.Engine,
		cache:        settings.Cache,
	}
	d.container.AddLayer(comp)
	d.lastVersion = comp.ContentVersion()
	d.refreshOwnership()
	return &d
}

func (d *decoder) Width() int {
	return d.width
}

func (d *decoder) Height() int {
	return d.height
}

func (d *decoder) NumFrames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkCompositionChange(d.composition())
	return d.numFrames
}

func (d *decoder) FrameRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkCompositionChange(d.composition())
	return d.frameRate
}

func (d *decoder) ReadFrame(index int, dst []byte, format pixel.Format) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		log.Error("Unable to read frame %d: decoder is closed", index)
		metrics.ObserveRead(metrics.ResultFailure)
		return ErrDecoderClosed
	}

	comp := d.composition()
	d.checkCompositionChange(comp)

	if index < 0 || index >= d.numFrames {
		log.Error("Unable to read frame: index %d is out of range [0, %d)", index, d.numFrames)
		metrics.ObserveRead(metrics.ResultFailure)
		return xerror.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, d.numFrames)
	}

	if size := format.RowBytes * d.height; len(dst) < size {
		log.Error("Unable to read frame: buffer holds %d bytes, need %d", len(dst), size)
		metrics.ObserveRead(metrics.ResultFailure)
		return xerror.Errorf("%w: %d bytes, need %d", ErrBufferTooSmall, len(dst), size)
	}

	if err := d.checkSequenceFile(comp, format); err != nil {
		metrics.ObserveRead(metrics.ResultFailure)
		return err
	}

	result := metrics.ResultHit
	if err := d.sequence.ReadFrame(index, dst); err != nil {
		if !errors.Is(err, diskcache.ErrFrameNotCached) {
			log.Warn("Unable to read frame %d from sequence file: %v", index, err)
		}
		if err := d.renderFrame(comp, index, dst, format); err != nil {
			d.releaseWhenComplete(comp)
			metrics.ObserveRead(metrics.ResultFailure)
			return err
		}
		result = metrics.ResultRender
		if err := d.sequence.WriteFrame(index, dst); err != nil {
			log.Error("Unable to write frame %d to sequence file: %v", index, err)
			metrics.CacheWriteFailures.Inc()
		}
	}

	d.releaseWhenComplete(comp)
	metrics.ObserveRead(result)
	return nil
}

func (d *decoder) Ownership() Ownership {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshOwnership()
}

// Close releases the rendering engine, the sequence file and the decoder's
// hold on its composition. The decoder is unusable afterwards.
func (d *decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	d.releaseEngine()
	d.container.RemoveAllLayers()
	d.ownership = Detached

	if d.sequence == nil {
		return nil
	}
	err := d.sequence.Close()
	d.sequence = nil
	return err
}

// composition resolves the composition currently driving the decoder: the
// container's only child, else the composition bound to the player.
func (d *decoder) composition() *composition.Composition {
	if d.container.NumChildren() == 1 {
		return d.container.Child(0)
	}
	if d.player != nil {
		return d.playerComp
	}
	return nil
}
