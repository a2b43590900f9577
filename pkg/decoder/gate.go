package decoder

import (
	"github.com/tauraamui/framecache/pkg/composition"
	"github.com/tauraamui/framecache/pkg/log"
	"github.com/tauraamui/framecache/pkg/metrics"
	"github.com/tauraamui/framecache/pkg/pixel"
	"github.com/tauraamui/xerror"
)

// checkSequenceFile opens the sequence file on first use and after a
// content change, and rejects reads whose format differs from the one
// the open sequence was created with.
func (d *decoder) checkSequenceFile(comp *composition.Composition, format pixel.Format) error {
	if d.sequence != nil {
		if format != d.lastFormat {
			log.Error("Unable to read frame: pixel format %s differs from %s used previously", format, d.lastFormat)
			return xerror.Errorf("%w: got %s, want %s", ErrPixelFormatMismatch, format, d.lastFormat)
		}
		return nil
	}

	if comp == nil {
		log.Error("Unable to open sequence file: composition was added to another parent after the decoder was created")
		return ErrCompositionDetached
	}

	info := pixel.MakeInfo(d.width, d.height, format)
	if err := info.Validate(); err != nil {
		log.Error("Unable to open sequence file: %v", err)
		return xerror.Errorf("%w: %v", ErrInvalidPixelFormat, err)
	}

	seq, err := d.cache.OpenSequence(CacheKey(comp, d.width, d.height), info, d.numFrames, d.frameRate)
	if err != nil {
		log.Error("Unable to open sequence file: %v", err)
		return xerror.Errorf("%w: %v", ErrOpenSequence, err)
	}
	d.sequence = seq
	d.lastFormat = format
	return nil
}

// checkCompositionChange drops the open sequence and recomputes frame
// timing when comp's content version moved since it was last seen.
func (d *decoder) checkCompositionChange(comp *composition.Composition) {
	if comp == nil {
		return
	}
	version := comp.ContentVersion()
	if version == d.lastVersion {
		return
	}

	if d.sequence != nil {
		if err := d.sequence.Close(); err != nil {
			log.Warn("Unable to close stale sequence file: %v", err)
		}
		d.sequence = nil
		metrics.Invalidations.Inc()
	}
	d.lastVersion = version
	d.numFrames, d.frameRate = FrameCountAndRate(comp, d.maxFrameRate)
	log.Debug("Composition changed, %d frames at %.2ffps", d.numFrames, d.frameRate)
}
