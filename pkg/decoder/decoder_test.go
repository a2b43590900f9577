package decoder_test

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/suite"
	"github.com/tacusci/logging/v2"
	"github.com/tauraamui/framecache/pkg/composition"
	"github.com/tauraamui/framecache/pkg/decoder"
	"github.com/tauraamui/framecache/pkg/diskcache"
	"github.com/tauraamui/framecache/pkg/log"
	"github.com/tauraamui/framecache/pkg/metrics"
	"github.com/tauraamui/framecache/pkg/pixel"
)

func overloadErrorLog(overload func(string, ...interface{})) func() {
	logErrorRef := log.Error
	log.Error = overload
	return func() { log.Error = logErrorRef }
}

var rgba = pixel.Format{
	RowBytes:  8 * 4,
	ColorType: pixel.ColorRGBA8888,
	AlphaType: pixel.AlphaPremultiplied,
}

var bgra = pixel.Format{
	RowBytes:  8 * 4,
	ColorType: pixel.ColorBGRA8888,
	AlphaType: pixel.AlphaPremultiplied,
}

func frameBuffer(f pixel.Format) []byte {
	return make([]byte, f.RowBytes*6)
}

type DecoderTestSuite struct {
	suite.Suite
	engine                 *countingEngine
	cache                  *countingCache
	errorLogs              []string
	resetErrorLogsOverload func()
}

func (suite *DecoderTestSuite) SetupSuite() {
	logging.CurrentLoggingLevel = logging.SilentLevel
}

func (suite *DecoderTestSuite) TearDownSuite() {
	logging.CurrentLoggingLevel = logging.WarnLevel
}

func (suite *DecoderTestSuite) SetupTest() {
	suite.resetErrorLogsOverload = overloadErrorLog(
		func(format string, a ...interface{}) {
			suite.errorLogs = append(suite.errorLogs, fmt.Sprintf(format, a...))
		},
	)
	suite.engine = newCountingEngine()
	suite.cache = &countingCache{Cache: diskcache.NewFileCache(afero.NewMemMapFs(), "/cache", nil)}
}

func (suite *DecoderTestSuite) TearDownTest() {
	suite.cache.Close()
	suite.errorLogs = nil
	suite.resetErrorLogsOverload()
}

func TestDecoderTestSuite(t *testing.T) {
	suite.Run(t, &DecoderTestSuite{})
}

func (suite *DecoderTestSuite) settings() decoder.Settings {
	return decoder.Settings{MaxFrameRate: 30, Scale: 1, Engine: suite.engine, Cache: suite.cache}
}

// newComposition is 8x6 and lasts duration microseconds at 30fps.
func newComposition(duration int64) *composition.Composition {
	return composition.New(8, 6, duration, 30)
}

func (suite *DecoderTestSuite) TestMakeFromNilCompositionReturnsNil() {
	is := is.New(suite.T())
	is.True(decoder.MakeFrom(nil, suite.settings()) == nil)
	is.Equal(len(suite.errorLogs), 1)
}

func (suite *DecoderTestSuite) TestMakeFromWithoutCacheReturnsNil() {
	is := is.New(suite.T())
	settings := suite.settings()
	settings.Cache = nil
	is.True(decoder.MakeFrom(newComposition(1_000_000), settings) == nil)
}

func (suite *DecoderTestSuite) TestMakeFromScalesSizeAndAppliesDefaults() {
	is := is.New(suite.T())
	comp := composition.New(100, 50, 2_000_000, 60)
	dec := decoder.MakeFrom(comp, decoder.Settings{Scale: 0.25, Cache: suite.cache})
	is.True(dec != nil)
	defer dec.Close()

	is.Equal(dec.Width(), 25)
	is.Equal(dec.Height(), 13)
	is.Equal(dec.FrameRate(), float64(decoder.DefaultMaxFrameRate))
	is.Equal(dec.NumFrames(), 60)
}

func (suite *DecoderTestSuite) TestFirstReadRendersAndWritesSecondReadHits() {
	is := is.New(suite.T())
	comp := newComposition(2_000_000)
	dec := decoder.MakeFrom(comp, suite.settings())
	defer dec.Close()
	is.Equal(dec.NumFrames(), 60)

	first := frameBuffer(rgba)
	is.NoErr(dec.ReadFrame(0, first, rgba))
	is.Equal(suite.engine.Flushes(), 1)
	is.Equal(suite.cache.Writes(), 1)

	second := frameBuffer(rgba)
	is.NoErr(dec.ReadFrame(0, second, rgba))
	is.Equal(suite.engine.Flushes(), 1)
	is.Equal(suite.cache.Writes(), 1)
	is.Equal(first, second)
}

func (suite *DecoderTestSuite) TestReadsOfSameIndexAreIdenticalAcrossDecoders() {
	is := is.New(suite.T())
	dir := suite.T().TempDir()
	path := filepath.Join(dir, "anim.json")
	is.NoErr(composition.Save(newComposition(1_000_000), path))

	load := func() []byte {
		comp, err := composition.Load(path)
		is.NoErr(err)
		dec := decoder.MakeFrom(comp, suite.settings())
		defer dec.Close()
		buf := frameBuffer(rgba)
		is.NoErr(dec.ReadFrame(7, buf, rgba))
		return buf
	}

	rendered := load()
	cached := load()
	is.Equal(rendered, cached)
	// the second decoder was served from the shared sequence
	is.Equal(suite.engine.Flushes(), 1)
	is.True(strings.HasPrefix(suite.cache.keys[0], path+".8x6@"))
	is.Equal(suite.cache.keys[1], suite.cache.keys[0])
}

func (suite *DecoderTestSuite) TestFormatChangeFailsWithoutTouchingCache() {
	is := is.New(suite.T())
	dec := decoder.MakeFrom(newComposition(1_000_000), suite.settings())
	defer dec.Close()

	original := frameBuffer(rgba)
	is.NoErr(dec.ReadFrame(3, original, rgba))
	flushes, writes := suite.engine.Flushes(), suite.cache.Writes()

	err := dec.ReadFrame(3, frameBuffer(bgra), bgra)
	suite.ErrorIs(err, decoder.ErrPixelFormatMismatch)

	wider := rgba
	wider.RowBytes += 4
	err = dec.ReadFrame(4, make([]byte, wider.RowBytes*6), wider)
	suite.ErrorIs(err, decoder.ErrPixelFormatMismatch)

	is.Equal(suite.engine.Flushes(), flushes)
	is.Equal(suite.cache.Writes(), writes)
	is.Equal(suite.cache.Opens(), 1)

	again := frameBuffer(rgba)
	is.NoErr(dec.ReadFrame(3, again, rgba))
	is.Equal(again, original)
	is.Equal(suite.engine.Flushes(), flushes)
}

func (suite *DecoderTestSuite) TestContentChangeRecomputesTimingAndReopens() {
	is := is.New(suite.T())
	comp := newComposition(2_000_000)
	dec := decoder.MakeFrom(comp, suite.settings())
	defer dec.Close()

	is.NoErr(dec.ReadFrame(0, frameBuffer(rgba), rgba))
	before := testutil.ToFloat64(metrics.Invalidations)

	comp.SetDuration(1_000_000)
	is.Equal(dec.NumFrames(), 30)
	is.Equal(testutil.ToFloat64(metrics.Invalidations), before+1)

	// the new content is rendered into a fresh sequence
	is.NoErr(dec.ReadFrame(0, frameBuffer(rgba), rgba))
	is.Equal(suite.cache.Opens(), 2)
	is.Equal(suite.engine.Flushes(), 2)

	// a new format is accepted once the old sequence is gone
	comp.SetFrameRate(15)
	is.Equal(dec.FrameRate(), 15.0)
	is.NoErr(dec.ReadFrame(0, frameBuffer(bgra), bgra))
}

func (suite *DecoderTestSuite) TestOutOfRangeIndexFailsWithoutOpeningCache() {
	is := is.New(suite.T())
	dec := decoder.MakeFrom(newComposition(1_000_000), suite.settings())
	defer dec.Close()

	suite.ErrorIs(dec.ReadFrame(-1, frameBuffer(rgba), rgba), decoder.ErrIndexOutOfRange)
	suite.ErrorIs(dec.ReadFrame(dec.NumFrames(), frameBuffer(rgba), rgba), decoder.ErrIndexOutOfRange)
	is.Equal(suite.cache.Opens(), 0)
	is.Equal(suite.engine.Flushes(), 0)
	is.Equal(len(suite.errorLogs), 2)
}

func (suite *DecoderTestSuite) TestZeroDurationHasNoValidFrames() {
	is := is.New(suite.T())
	dec := decoder.MakeFrom(newComposition(0), suite.settings())
	defer dec.Close()

	is.Equal(dec.NumFrames(), 0)
	suite.ErrorIs(dec.ReadFrame(0, frameBuffer(rgba), rgba), decoder.ErrIndexOutOfRange)
}

func (suite *DecoderTestSuite) TestInvalidFormatAndShortBuffer() {
	dec := decoder.MakeFrom(newComposition(1_000_000), suite.settings())
	defer dec.Close()

	suite.ErrorIs(dec.ReadFrame(0, make([]byte, 4), rgba), decoder.ErrBufferTooSmall)

	narrow := rgba
	narrow.RowBytes = 4
	suite.ErrorIs(dec.ReadFrame(0, frameBuffer(narrow), narrow), decoder.ErrInvalidPixelFormat)
	suite.Equal(0, suite.cache.Opens())
}

func (suite *DecoderTestSuite) TestCacheWriteFailureStillReturnsPixels() {
	is := is.New(suite.T())
	suite.cache.writeErr = errInjected
	before := testutil.ToFloat64(metrics.CacheWriteFailures)

	dec := decoder.MakeFrom(newComposition(1_000_000), suite.settings())
	defer dec.Close()

	buf := frameBuffer(rgba)
	is.NoErr(dec.ReadFrame(0, buf, rgba))
	is.True(len(suite.errorLogs) == 1)
	is.Equal(testutil.ToFloat64(metrics.CacheWriteFailures), before+1)

	nonZero := false
	for _, b := range buf {
		nonZero = nonZero || b != 0
	}
	is.True(nonZero)
}

func (suite *DecoderTestSuite) TestOpenFailureFailsRead() {
	suite.cache.openErr = errInjected
	dec := decoder.MakeFrom(newComposition(1_000_000), suite.settings())
	defer dec.Close()

	suite.ErrorIs(dec.ReadFrame(0, frameBuffer(rgba), rgba), decoder.ErrOpenSequence)
	suite.Equal(0, suite.engine.Flushes())
}

func (suite *DecoderTestSuite) TestSurfaceFailureFailsRead() {
	suite.engine.surfaceErr = errInjected
	dec := decoder.MakeFrom(newComposition(1_000_000), suite.settings())
	defer dec.Close()

	suite.ErrorIs(dec.ReadFrame(0, frameBuffer(rgba), rgba), decoder.ErrRender)
	suite.Equal(0, suite.cache.Writes())
}

func (suite *DecoderTestSuite) TestCompositionMovedToAnotherParentIsDetached() {
	is := is.New(suite.T())
	comp := newComposition(1_000_000)
	dec := decoder.MakeFrom(comp, suite.settings())
	defer dec.Close()

	other := composition.New(8, 6, 1_000_000, 30)
	other.AddLayer(comp)

	suite.ErrorIs(dec.ReadFrame(0, frameBuffer(rgba), rgba), decoder.ErrCompositionDetached)
	is.Equal(dec.Ownership(), decoder.Detached)
}

func (suite *DecoderTestSuite) TestCompleteSequenceReleasesEngineAndKeepsSharedComposition() {
	is := is.New(suite.T())
	comp := newComposition(100_000)
	dec := decoder.MakeFrom(comp, suite.settings())
	defer dec.Close()
	is.Equal(dec.NumFrames(), 3)
	is.Equal(dec.Ownership(), decoder.ExternallyShared)

	before := testutil.ToFloat64(metrics.EngineReleases)
	for i := 0; i < 3; i++ {
		is.NoErr(dec.ReadFrame(i, frameBuffer(rgba), rgba))
	}
	is.Equal(suite.engine.Closed(), 1)
	is.Equal(testutil.ToFloat64(metrics.EngineReleases), before+1)
	is.Equal(comp.Holders(), 2)
	is.Equal(dec.Ownership(), decoder.ExternallyShared)

	// the caller lets go, the next hit drops the decoder's hold as well
	comp.Release()
	is.NoErr(dec.ReadFrame(1, frameBuffer(rgba), rgba))
	is.Equal(comp.Holders(), 0)
	is.Equal(dec.Ownership(), decoder.Detached)

	// frames keep coming from the complete sequence
	is.NoErr(dec.ReadFrame(2, frameBuffer(rgba), rgba))
	is.Equal(suite.engine.Flushes(), 3)
}

func (suite *DecoderTestSuite) TestDecoderOwnedCompositionIsDetachedAfterCompletion() {
	is := is.New(suite.T())
	comp := newComposition(100_000)
	dec := decoder.MakeFrom(comp, suite.settings())
	defer dec.Close()
	comp.Release()
	is.Equal(dec.Ownership(), decoder.DecoderOwns)

	is.NoErr(dec.ReadFrame(0, frameBuffer(rgba), rgba))
	is.Equal(comp.Holders(), 2)
	is.Equal(dec.Ownership(), decoder.DecoderOwns)

	is.NoErr(dec.ReadFrame(1, frameBuffer(rgba), rgba))
	is.NoErr(dec.ReadFrame(2, frameBuffer(rgba), rgba))
	is.Equal(comp.Holders(), 1)
	is.Equal(dec.Ownership(), decoder.DecoderOwns)

	is.NoErr(dec.ReadFrame(0, frameBuffer(rgba), rgba))
	is.Equal(dec.Ownership(), decoder.Detached)
}

func (suite *DecoderTestSuite) TestCloseReleasesEverything() {
	is := is.New(suite.T())
	comp := newComposition(1_000_000)
	dec := decoder.MakeFrom(comp, suite.settings())
	is.NoErr(dec.ReadFrame(0, frameBuffer(rgba), rgba))
	is.Equal(comp.Holders(), 3)

	is.NoErr(dec.Close())
	is.NoErr(dec.Close())
	is.Equal(comp.Holders(), 1)
	is.Equal(suite.engine.Closed(), 1)
	is.Equal(dec.Ownership(), decoder.Detached)
	suite.ErrorIs(dec.ReadFrame(0, frameBuffer(rgba), rgba), decoder.ErrDecoderClosed)
}

func (suite *DecoderTestSuite) TestReadAfterFileReloadRendersNewContent() {
	is := is.New(suite.T())
	path := filepath.Join(suite.T().TempDir(), "anim.json")
	is.NoErr(composition.Save(newComposition(1_000_000), path))
	comp, err := composition.Load(path)
	is.NoErr(err)
	dec := decoder.MakeFrom(comp, suite.settings())
	defer dec.Close()

	is.NoErr(dec.ReadFrame(0, frameBuffer(rgba), rgba))
	is.Equal(suite.engine.Flushes(), 1)

	// same size, duration and rate so only the content differs
	edited := newComposition(1_000_000)
	edited.AddLayer(composition.NewLayer(8, 6, 1_000_000, 30, composition.LayerOther))
	edited.AddLayer(composition.NewLayer(8, 6, 1_000_000, 30, composition.LayerOther))
	is.NoErr(composition.Save(edited, path))
	is.NoErr(composition.Reload(comp, path))

	// nothing has removed the earlier frames from the store yet
	is.NoErr(dec.ReadFrame(0, frameBuffer(rgba), rgba))
	is.Equal(suite.engine.Flushes(), 2)
	is.Equal(len(suite.cache.keys), 2)
	is.True(suite.cache.keys[0] != suite.cache.keys[1])
	is.True(strings.HasPrefix(suite.cache.keys[1], path+".8x6@"))
}

func (suite *DecoderTestSuite) TestReadOnClosedDecoderLogsAndCountsFailure() {
	is := is.New(suite.T())
	dec := decoder.MakeFrom(newComposition(1_000_000), suite.settings())
	is.NoErr(dec.Close())
	suite.errorLogs = nil
	before := testutil.ToFloat64(metrics.FrameReads.WithLabelValues(metrics.ResultFailure))

	suite.ErrorIs(dec.ReadFrame(3, frameBuffer(rgba), rgba), decoder.ErrDecoderClosed)

	is.Equal(suite.errorLogs, []string{"Unable to read frame 3: decoder is closed"})
	is.Equal(testutil.ToFloat64(metrics.FrameReads.WithLabelValues(metrics.ResultFailure)), before+1)
}

func (suite *DecoderTestSuite) TestConcurrentReadsWhileCompositionChanges() {
	comp := newComposition(1_000_000)
	dec := decoder.MakeFrom(comp, suite.settings())
	defer dec.Close()

	const readers = 4
	errs := make(chan error, readers*30)
	wg := sync.WaitGroup{}
	wg.Add(readers + 1)
	for r := 0; r < readers; r++ {
		go func() {
			defer wg.Done()
			buf := frameBuffer(rgba)
			// every duration used below spans at least 30 frames
			for i := 0; i < 30; i++ {
				if err := dec.ReadFrame(i, buf, rgba); err != nil {
					errs <- err
				}
				_ = dec.NumFrames()
				_ = dec.FrameRate()
			}
		}()
	}
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			comp.SetDuration(1_000_000 + int64(i%2)*1_000_000)
		}
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		suite.NoError(err)
	}
	suite.Equal(60, dec.NumFrames())
	suite.Equal(30.0, dec.FrameRate())
}
