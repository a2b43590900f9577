// Package diskcache stores decoded frame sequences so that frames can be
// read back without rendering them again. A sequence is identified by a
// cache key together with the layout and timing it was opened with, so
// sequences of one key with different formats live side by side.
package diskcache

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/tauraamui/framecache/pkg/pixel"
	"github.com/tauraamui/xerror"
)

var (
	ErrFrameNotCached  = xerror.New("frame not cached")
	ErrFrameOutOfRange = xerror.New("frame index out of range")
	ErrBufferSize      = xerror.New("frame buffer too small")
	ErrSequenceClosed  = xerror.New("sequence file is closed")
	ErrCacheClosed     = xerror.New("cache is closed")
	ErrEmptyKey        = xerror.New("cache key is empty")
)

// Cache opens sequence files. Opening a key that is already open with the
// same layout shares the underlying sequence between handles.
type Cache interface {
	// OpenSequence opens or creates the sequence for key. An empty key opens
	// a temporary sequence which is discarded once its last handle closes.
	OpenSequence(key string, info pixel.Info, numFrames int, frameRate float64) (SequenceFile, error)
	// Remove deletes every stored sequence of key. Open handles keep
	// working but later opens start from an empty sequence.
	Remove(key string) error
	Close() error
}

type SequenceFile interface {
	Info() pixel.Info
	NumFrames() int
	FrameRate() float64
	// ReadFrame copies frame index into dst, returning an error wrapping
	// ErrFrameNotCached when it has not been written yet.
	ReadFrame(index int, dst []byte) error
	WriteFrame(index int, src []byte) error
	// IsComplete reports whether every frame of the sequence is stored.
	IsComplete() bool
	Close() error
}

func validateOpen(info pixel.Info, numFrames int, frameRate float64) error {
	if err := info.Validate(); err != nil {
		return xerror.Errorf("unable to open sequence: %w", err)
	}
	if numFrames < 0 {
		return xerror.Errorf("unable to open sequence: negative frame count %d", numFrames)
	}
	if frameRate < 0 {
		return xerror.Errorf("unable to open sequence: negative frame rate %v", frameRate)
	}
	return nil
}

// sequenceID names the sequence of key opened with the given layout. Keyless
// sequences get a random id so that they are never shared.
func sequenceID(key string, info pixel.Info, numFrames int, frameRate float64) string {
	if len(key) == 0 {
		return uuid.NewString()
	}
	name := fmt.Sprintf(
		"%s|%dx%d|%d|%d|%d|%d|%s",
		key, info.Width, info.Height, info.RowBytes, info.ColorType, info.AlphaType,
		numFrames, strconv.FormatFloat(frameRate, 'g', -1, 64),
	)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// keyID groups every sequence of key under one stable name.
func keyID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}
