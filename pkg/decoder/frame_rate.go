package decoder

import (
	"math"

	"github.com/tauraamui/framecache/pkg/composition"
)

// maxNestingDepth bounds how far FrameRate follows single pre-composed children.
const maxNestingDepth = 64

// FrameRate resolves the natural frame rate of node. A leaf backed by a
// bitmap or video source uses the source rate, a wrapper around exactly
// one pre-composed child inherits the child's rate, anything else uses its
// own declared rate.
func FrameRate(node composition.Node) float64 {
	return frameRate(node, 0)
}

func frameRate(node composition.Node, depth int) float64 {
	switch node.NumChildren() {
	case 0:
		if a := node.Asset(); a != nil && (a.Type == composition.LayerBitmap || a.Type == composition.LayerVideo) {
			return a.FrameRate
		}
	case 1:
		child := node.ChildAt(0)
		if child != nil && child.LayerType() == composition.LayerPreCompose && depth < maxNestingDepth {
			return frameRate(child, depth+1)
		}
	}
	return node.FrameRate()
}

// FrameCountAndRate caps the resolved rate of node at maxFrameRate and
// derives the number of frames its duration spans at that rate.
func FrameCountAndRate(node composition.Node, maxFrameRate float64) (int, float64) {
	rate := math.Min(maxFrameRate, FrameRate(node))
	numFrames := int(math.Round(float64(node.Duration()) * rate / 1_000_000))
	if numFrames < 0 {
		numFrames = 0
	}
	return numFrames, rate
}
