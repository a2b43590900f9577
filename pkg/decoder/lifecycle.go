package decoder

import (
	"github.com/tauraamui/framecache/pkg/composition"
	"github.com/tauraamui/framecache/pkg/log"
	"github.com/tauraamui/framecache/pkg/metrics"
)

// releaseWhenComplete frees rendering resources once every frame is cached.
// With a player bound the player goes and comp returns to the container
// while anyone else still holds it. Without one, comp is dropped as soon
// as the container is its only holder.
func (d *decoder) releaseWhenComplete(comp *composition.Composition) {
	if d.sequence == nil || comp == nil || !d.sequence.IsComplete() {
		return
	}

	if d.player != nil {
		d.releaseEngine()
		metrics.EngineReleases.Inc()
		log.Debug("Sequence complete, released rendering engine")
		if comp.Holders() > 0 {
			d.container.AddLayer(comp)
		}
		d.refreshOwnership()
		return
	}

	if comp.Holders() <= 1 && d.container.NumChildren() > 0 {
		d.container.RemoveAllLayers()
		log.Debug("Sequence complete, detached composition")
	}
	d.refreshOwnership()
}

// refreshOwnership compares the holders of the current composition with
// the holds the decoder itself registered.
func (d *decoder) refreshOwnership() Ownership {
	comp := d.composition()
	if comp == nil || d.closed {
		d.ownership = Detached
		return d.ownership
	}

	own := 0
	if d.container.NumChildren() == 1 && d.container.Child(0) == comp {
		own++
	}
	if d.player != nil && d.playerComp == comp {
		own++
	}
	if comp.Holders() > own {
		d.ownership = ExternallyShared
	} else {
		d.ownership = DecoderOwns
	}
	return d.ownership
}
