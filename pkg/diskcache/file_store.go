package diskcache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/tauraamui/framecache/pkg/database/repos"
	"github.com/tauraamui/framecache/pkg/log"
	"github.com/tauraamui/framecache/pkg/pixel"
	"github.com/tauraamui/xerror"
)

const (
	sequenceFileExt = ".fseq"
	tempDirName     = "tmp"
	sequenceVersion = 1
)

var sequenceMagic = [4]byte{'F', 'S', 'E', 'Q'}

// header leads every sequence file, followed by the presence bitmap and
// then the frames in index order.
type header struct {
	Magic     [4]byte
	Version   uint16
	Reserved  uint16
	Width     uint32
	Height    uint32
	ColorType uint8
	AlphaType uint8
	Padding   uint16
	RowBytes  uint32
	NumFrames uint32
	FrameRate float64
}

var headerSize = int64(binary.Size(header{}))

func makeHeader(info pixel.Info, numFrames int, frameRate float64) header {
	return header{
		Magic:     sequenceMagic,
		Version:   sequenceVersion,
		Width:     uint32(info.Width),
		Height:    uint32(info.Height),
		ColorType: uint8(info.ColorType),
		AlphaType: uint8(info.AlphaType),
		RowBytes:  uint32(info.RowBytes),
		NumFrames: uint32(numFrames),
		FrameRate: frameRate,
	}
}

type fileCache struct {
	fs      afero.Fs
	root    string
	catalog *repos.SequenceRepository
	reg     *registry
}

// NewFileCache stores sequences as files under root. catalog is optional.
func NewFileCache(fs afero.Fs, root string, catalog *repos.SequenceRepository) Cache {
	return &fileCache{
		fs:      fs,
		root:    root,
		catalog: catalog,
		reg:     newRegistry(),
	}
}

func (c *fileCache) OpenSequence(key string, info pixel.Info, numFrames int, frameRate float64) (SequenceFile, error) {
	if err := validateOpen(info, numFrames, frameRate); err != nil {
		return nil, err
	}
	id := sequenceID(key, info, numFrames, frameRate)
	return c.reg.acquire(id, func() (*sequence, error) {
		path := c.sequencePath(key, id)
		frames, present, err := openFileFrames(c.fs, path, info, numFrames, frameRate)
		if err != nil {
			return nil, err
		}
		log.Debug("Opened sequence file %s", path)
		return newSequence(id, key, info, numFrames, frameRate, frames, present, c.catalog), nil
	})
}

func (c *fileCache) sequencePath(key, id string) string {
	if len(key) == 0 {
		return filepath.Join(c.root, tempDirName, id+sequenceFileExt)
	}
	return filepath.Join(c.root, keyID(key), id+sequenceFileExt)
}

func (c *fileCache) Remove(key string) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	c.reg.forget(key)
	if err := c.fs.RemoveAll(filepath.Join(c.root, keyID(key))); err != nil {
		return xerror.Errorf("unable to remove sequences of %s: %w", key, err)
	}
	forgetCatalog(c.catalog, key)
	return nil
}

func (c *fileCache) Close() error {
	err := c.reg.closeAll()
	if rerr := c.fs.RemoveAll(filepath.Join(c.root, tempDirName)); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

type fileFrames struct {
	fs           afero.Fs
	path         string
	f            afero.File
	bitmapOffset int64
	dataOffset   int64
	frameSize    int64
}

func openFileFrames(fs afero.Fs, path string, info pixel.Info, numFrames int, frameRate float64) (*fileFrames, *bitmap, error) {
	if err := fs.MkdirAll(filepath.Dir(path), os.ModeDir|os.ModePerm); err != nil {
		return nil, nil, xerror.Errorf("unable to create sequence directory: %w", err)
	}
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, xerror.Errorf("unable to open sequence file %s: %w", path, err)
	}

	frames := &fileFrames{
		fs:           fs,
		path:         path,
		f:            f,
		bitmapOffset: headerSize,
		dataOffset:   headerSize + int64(bitmapLen(numFrames)),
		frameSize:    int64(info.ByteSize()),
	}

	want := makeHeader(info, numFrames, frameRate)
	present, err := frames.loadPresence(want, numFrames)
	if err == nil {
		return frames, present, nil
	}
	if !errors.Is(err, io.EOF) {
		log.Warn("Resetting sequence file %s: %v", path, err)
	}

	if err := frames.reset(want, numFrames); err != nil {
		f.Close()
		return nil, nil, err
	}
	return frames, newBitmap(numFrames), nil
}

var errHeaderMismatch = xerror.New("sequence header does not match")

func (f *fileFrames) loadPresence(want header, numFrames int) (*bitmap, error) {
	buf := make([]byte, headerSize)
	if _, err := f.f.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	var got header
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &got); err != nil {
		return nil, err
	}
	if got != want {
		return nil, errHeaderMismatch
	}

	bits := make([]byte, bitmapLen(numFrames))
	if len(bits) > 0 {
		if _, err := f.f.ReadAt(bits, f.bitmapOffset); err != nil {
			return nil, err
		}
	}
	return bitmapFrom(bits, numFrames), nil
}

func (f *fileFrames) reset(h header, numFrames int) error {
	if err := f.f.Truncate(0); err != nil {
		return xerror.Errorf("unable to truncate sequence file %s: %w", f.path, err)
	}
	buf := bytes.Buffer{}
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return err
	}
	buf.Write(make([]byte, bitmapLen(numFrames)))
	if _, err := f.f.WriteAt(buf.Bytes(), 0); err != nil {
		return xerror.Errorf("unable to write sequence header %s: %w", f.path, err)
	}
	return nil
}

func (f *fileFrames) readFrame(index int, dst []byte) error {
	n, err := f.f.ReadAt(dst, f.dataOffset+int64(index)*f.frameSize)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(dst)) {
		return err
	}
	return nil
}

func (f *fileFrames) writeFrame(index int, src []byte, present *bitmap) error {
	if _, err := f.f.WriteAt(src, f.dataOffset+int64(index)*f.frameSize); err != nil {
		return err
	}
	b := index / 8
	_, err := f.f.WriteAt(present.bits[b:b+1], f.bitmapOffset+int64(b))
	return err
}

func (f *fileFrames) close() error {
	return f.f.Close()
}

func (f *fileFrames) discard() error {
	if err := f.fs.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
