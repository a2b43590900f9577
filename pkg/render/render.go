package render

import (
	"github.com/tauraamui/framecache/pkg/composition"
	"github.com/tauraamui/framecache/pkg/pixel"
)

type Surface interface {
	Width() int
	Height() int
	Clear()
	ReadPixels(format pixel.Format, dst []byte) error
}

// Player progresses a bound composition and draws it onto a bound surface.
type Player interface {
	SetSurface(Surface)
	Surface() Surface
	SetComposition(composition.Node)
	Composition() composition.Node
	// SetProgress takes a normalised timeline position in [0, 1].
	SetProgress(float64)
	Flush() error
	Close()
}

type Engine interface {
	NewOffscreenSurface(width, height int) (Surface, error)
	NewPlayer() Player
}

// FrameToProgress maps frame of totalFrames onto the timeline. A small
// bias keeps the position inside the frame when mapped back by flooring.
func FrameToProgress(frame, totalFrames int) float64 {
	if totalFrames <= 1 || frame < 0 {
		return 0
	}
	if frame >= totalFrames {
		frame = totalFrames - 1
	}
	return (float64(frame) + 0.1) / float64(totalFrames)
}

// ProgressToFrame is the inverse of FrameToProgress.
func ProgressToFrame(progress float64, totalFrames int) int {
	if totalFrames <= 1 || progress <= 0 {
		return 0
	}
	frame := int(progress * float64(totalFrames))
	if frame >= totalFrames {
		frame = totalFrames - 1
	}
	return frame
}
