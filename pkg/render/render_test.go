package render_test

import (
	"testing"

	"github.com/matryer/is"
	"github.com/tauraamui/framecache/pkg/render"
)

func TestFrameToProgressStaysInsideTimeline(t *testing.T) {
	is := is.New(t)
	for _, total := range []int{2, 3, 24, 25, 60, 1000} {
		for frame := 0; frame < total; frame++ {
			p := render.FrameToProgress(frame, total)
			is.True(p >= 0 && p < 1)
			is.Equal(render.ProgressToFrame(p, total), frame)
		}
	}
}

func TestFrameToProgressDegenerateCounts(t *testing.T) {
	is := is.New(t)
	is.Equal(render.FrameToProgress(0, 0), 0.0)
	is.Equal(render.FrameToProgress(0, 1), 0.0)
	is.Equal(render.FrameToProgress(-4, 10), 0.0)
	// first frame sits just inside the timeline like every other frame
	is.Equal(render.FrameToProgress(0, 10), 0.01)
	is.True(render.FrameToProgress(50, 10) < 1)
}
