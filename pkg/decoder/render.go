package decoder

import (
	"time"

	"github.com/tauraamui/framecache/pkg/composition"
	"github.com/tauraamui/framecache/pkg/log"
	"github.com/tauraamui/framecache/pkg/metrics"
	"github.com/tauraamui/framecache/pkg/pixel"
	"github.com/tauraamui/framecache/pkg/render"
	"github.com/tauraamui/xerror"
)

// renderFrame draws frame index of comp straight into dst. The surface and
// player are created on first use and kept until the sequence completes.
func (d *decoder) renderFrame(comp *composition.Composition, index int, dst []byte, format pixel.Format) error {
	if comp == nil {
		d.releaseEngine()
		log.Error("Unable to render frame: composition was added to another parent after the decoder was created")
		return ErrCompositionDetached
	}

	if d.player == nil {
		surface, err := d.engine.NewOffscreenSurface(d.width, d.height)
		if err != nil {
			log.Error("Unable to create offscreen surface: %v", err)
			return xerror.Errorf("%w: %v", ErrRender, err)
		}
		player := d.engine.NewPlayer()
		player.SetSurface(surface)
		player.SetComposition(comp)
		comp.Retain()
		d.player, d.playerComp = player, comp
		d.refreshOwnership()
	}

	start := time.Now()
	d.player.SetProgress(render.FrameToProgress(index, d.numFrames))
	if err := d.player.Flush(); err != nil {
		log.Error("Unable to render frame %d: %v", index, err)
		return xerror.Errorf("%w: %d: %v", ErrRender, index, err)
	}
	if err := d.player.Surface().ReadPixels(format, dst); err != nil {
		log.Error("Unable to read pixels of frame %d: %v", index, err)
		return xerror.Errorf("%w: %d: %v", ErrRender, index, err)
	}
	metrics.ObserveRender(time.Since(start))
	return nil
}

func (d *decoder) releaseEngine() {
	if d.player == nil {
		return
	}
	d.player.Close()
	d.playerComp.Release()
	d.player, d.playerComp = nil, nil
}
