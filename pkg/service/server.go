// Package service runs framecache against the compositions named in its
// config: it opens the configured sequence store and catalog, decodes every
// frame ahead of time, exports single frames and keeps stores in step with
// composition files as they change.
package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/spf13/afero"
	"github.com/tauraamui/framecache/pkg/composition"
	"github.com/tauraamui/framecache/pkg/configdef"
	"github.com/tauraamui/framecache/pkg/database"
	"github.com/tauraamui/framecache/pkg/database/dbconn"
	"github.com/tauraamui/framecache/pkg/database/models"
	"github.com/tauraamui/framecache/pkg/database/repos"
	"github.com/tauraamui/framecache/pkg/decoder"
	"github.com/tauraamui/framecache/pkg/diskcache"
	"github.com/tauraamui/framecache/pkg/log"
	"github.com/tauraamui/framecache/pkg/pixel"
	"github.com/tauraamui/framecache/pkg/render"
	"github.com/tauraamui/framecache/pkg/service/process"
	"github.com/tauraamui/xerror"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoCatalog       = xerror.New("sequence catalog is not enabled")
	ErrServerShutdown  = xerror.New("server is shut down")
	ErrDecoderCreation = xerror.New("unable to create decoder")
)

type Server interface {
	Load(paths ...string) []error
	LoadWithCancel(ctx context.Context, paths ...string) []error
	Compositions() []string
	Warm(ctx context.Context, parallel int) error
	Export(path string, index int, dst string) error
	Catalog() ([]models.Sequence, error)
	SetupProcesses()
	RunProcesses()
	Shutdown() chan interface{}
}

// Options overrides parts of the server that are otherwise derived from
// the config values.
type Options struct {
	Engine render.Engine
}

// loaded is a composition the server decodes, with the decoder reading it
// and the cache key its frames were last stored under. The server holds
// comp for as long as it is loaded so the decoder never drops it and file
// reloads keep reaching the decoder.
type loaded struct {
	path string
	comp *composition.Composition
	dec  decoder.Decoder
	key  string
}

type server struct {
	mu           sync.Mutex
	config       configdef.Values
	engine       render.Engine
	cache        diskcache.Cache
	catalogDB    dbconn.GormWrapper
	catalog      *repos.SequenceRepository
	loaded       []*loaded
	processes    []process.Process
	shutdownDone chan interface{}
	closed       bool
}

var fs = afero.NewOsFs()

var connectCatalog = database.ConnectPath

// NewServer opens the sequence store and catalog the config names.
func NewServer(cfg configdef.Values, opts Options) (Server, error) {
	s := server{
		config:       cfg,
		engine:       opts.Engine,
		shutdownDone: make(chan interface{}),
	}

	if err := s.openCatalog(); err != nil {
		return nil, err
	}

	cache, err := openCache(cfg, s.catalog)
	if err != nil {
		s.closeCatalog()
		return nil, err
	}
	s.cache = cache
	return &s, nil
}

func (s *server) openCatalog() error {
	path := s.config.CatalogPath
	if len(path) == 0 {
		located, ok := database.Located()
		if !ok {
			log.Debug("No sequence catalog found, continuing without one")
			return nil
		}
		path = located
	}

	db, err := connectCatalog(path)
	if err != nil {
		return xerror.Errorf("unable to open sequence catalog: %w", err)
	}
	s.catalogDB = db
	s.catalog = &repos.SequenceRepository{DB: db}
	return nil
}

func (s *server) closeCatalog() {
	if s.catalogDB == nil {
		return
	}
	if err := s.catalogDB.Close(); err != nil {
		log.Error("Unable to close sequence catalog: %v", err)
	}
	s.catalogDB = nil
}

func openCache(cfg configdef.Values, catalog *repos.SequenceRepository) (diskcache.Cache, error) {
	switch cfg.StoreBackend {
	case configdef.StoreBackendBadger:
		log.Info("Opening badger sequence store at: %s", cfg.StoreLocation)
		cache, err := diskcache.OpenBadger(cfg.StoreLocation, catalog)
		if err != nil {
			return nil, xerror.Errorf("unable to open sequence store: %w", err)
		}
		return cache, nil
	default:
		log.Info("Opening sequence store at: %s", cfg.StoreLocation)
		if err := fs.MkdirAll(cfg.StoreLocation, 0755); err != nil {
			return nil, xerror.Errorf("unable to create sequence store %s: %w", cfg.StoreLocation, err)
		}
		return diskcache.NewFileCache(fs, cfg.StoreLocation, catalog), nil
	}
}

func (s *server) Load(paths ...string) []error {
	return s.load(context.Background(), paths)
}

func (s *server) LoadWithCancel(ctx context.Context, paths ...string) []error {
	return s.load(ctx, paths)
}

func (s *server) load(ctx context.Context, paths []string) []error {
	if len(paths) == 0 {
		paths = s.config.Compositions
	}

	var errs []error
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return []error{ErrServerShutdown}
	}
	for _, path := range paths {
		select {
		case <-ctx.Done():
			return errs
		default:
		}

		if s.find(path) != nil {
			log.Warn("Composition [%s] is already loaded... skipping...", path)
			continue
		}

		log.Info("Loading composition: [%s]...", path)
		l, err := s.loadOne(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		log.Info("Loaded composition [%s]: %d frames at %.2f fps", path, l.dec.NumFrames(), l.dec.FrameRate())
		s.loaded = append(s.loaded, l)
	}
	return errs
}

func (s *server) loadOne(path string) (*loaded, error) {
	comp, err := composition.Load(path)
	if err != nil {
		return nil, err
	}
	dec := decoder.MakeFrom(comp, decoder.Settings{
		MaxFrameRate: s.config.MaxFrameRate,
		Scale:        s.config.Scale,
		Engine:       s.engine,
		Cache:        s.cache,
	})
	if dec == nil {
		comp.Release()
		return nil, xerror.Errorf("%w: %s", ErrDecoderCreation, path)
	}
	return &loaded{
		path: path,
		comp: comp,
		dec:  dec,
		key:  decoder.CacheKey(comp, dec.Width(), dec.Height()),
	}, nil
}

func (s *server) find(path string) *loaded {
	for _, l := range s.loaded {
		if l.path == path {
			return l
		}
	}
	return nil
}

func (s *server) Compositions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.loaded))
	for _, l := range s.loaded {
		paths = append(paths, l.path)
	}
	return paths
}

func frameFormat(width int) pixel.Format {
	return pixel.Format{
		RowBytes:  width * pixel.ColorRGBA8888.BytesPerPixel(),
		ColorType: pixel.ColorRGBA8888,
		AlphaType: pixel.AlphaUnpremultiplied,
	}
}

// Warm decodes every frame of every loaded composition, at most parallel
// compositions at a time. The first failure cancels the rest.
func (s *server) Warm(ctx context.Context, parallel int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerShutdown
	}
	targets := append([]*loaded{}, s.loaded...)
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for _, l := range targets {
		g.Go(func() error {
			return warm(ctx, l)
		})
	}
	return g.Wait()
}

func warm(ctx context.Context, l *loaded) error {
	format := frameFormat(l.dec.Width())
	buf := make([]byte, format.RowBytes*l.dec.Height())
	numFrames := l.dec.NumFrames()
	log.Info("Warming composition [%s]: %d frames...", l.path, numFrames)
	for i := 0; i < numFrames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.dec.ReadFrame(i, buf, format); err != nil {
			return xerror.Errorf("unable to warm frame %d of %s: %w", i, l.path, err)
		}
	}
	log.Info("Warmed composition [%s]", l.path)
	return nil
}

// Export writes frame index of the composition at path to dst as a PNG,
// loading the composition first if needed.
func (s *server) Export(path string, index int, dst string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerShutdown
	}
	l := s.find(path)
	if l == nil {
		var err error
		if l, err = s.loadOne(path); err != nil {
			s.mu.Unlock()
			return err
		}
		s.loaded = append(s.loaded, l)
	}
	s.mu.Unlock()

	img := image.NewNRGBA(image.Rect(0, 0, l.dec.Width(), l.dec.Height()))
	if err := l.dec.ReadFrame(index, img.Pix, frameFormat(l.dec.Width())); err != nil {
		return xerror.Errorf("unable to export frame %d of %s: %w", index, path, err)
	}

	var encoded bytes.Buffer
	if err := png.Encode(&encoded, img); err != nil {
		return xerror.Errorf("unable to encode frame %d of %s: %w", index, path, err)
	}
	if err := fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return xerror.Errorf("unable to create export directory: %w", err)
	}
	if err := renameio.WriteFile(dst, encoded.Bytes(), 0644); err != nil {
		return xerror.Errorf("unable to write %s: %w", dst, err)
	}
	log.Info("Exported frame %d of [%s] to: %s", index, path, dst)
	return nil
}

func (s *server) Catalog() ([]models.Sequence, error) {
	if s.catalog == nil {
		return nil, ErrNoCatalog
	}
	return s.catalog.All()
}

// invalidate drops the frames stored for the previous revision of l once
// its file was reloaded. The decoder already reads under the new key.
func (s *server) invalidate(l *loaded) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	stale := l.key
	l.key = decoder.CacheKey(l.comp, l.dec.Width(), l.dec.Height())
	if len(stale) == 0 || stale == l.key {
		return
	}
	if err := s.cache.Remove(stale); err != nil {
		log.Error("Unable to drop stored frames of [%s]: %v", stale, err)
		return
	}
	log.Info("Dropped stored frames of [%s]", stale)
}

func (s *server) shutdown() {
	s.shutdownProcesses()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	for _, l := range s.loaded {
		log.Warn("Closing decoder of composition: [%s]...", l.path)
		if err := l.dec.Close(); err != nil {
			log.Error("Unable to close decoder of [%s]: %v", l.path, err)
		}
		l.comp.Release()
	}
	s.loaded = nil

	if err := s.cache.Close(); err != nil && !errors.Is(err, diskcache.ErrCacheClosed) {
		log.Error("Unable to close sequence store: %v", err)
	}
	s.closeCatalog()
	close(s.shutdownDone)
}

func (s *server) Shutdown() chan interface{} {
	s.shutdown()
	return s.shutdownDone
}
