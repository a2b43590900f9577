package diskcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/tauraamui/framecache/pkg/database/repos"
	"github.com/tauraamui/framecache/pkg/log"
	"github.com/tauraamui/framecache/pkg/pixel"
	"github.com/tauraamui/xerror"
)

// Keys:
//
//	seq:<id>:meta       sequence layout as JSON
//	seq:<id>:f:<index>  frame pixels
//	key:<keyid>:<id>    index of the sequences stored for a cache key
const (
	seqPrefix = "seq:"
	keyPrefix = "key:"
)

type badgerMeta struct {
	Key       string  `json:"key"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	RowBytes  int     `json:"row_bytes"`
	ColorType uint8   `json:"color_type"`
	AlphaType uint8   `json:"alpha_type"`
	NumFrames int     `json:"num_frames"`
	FrameRate float64 `json:"frame_rate"`
}

func makeBadgerMeta(key string, info pixel.Info, numFrames int, frameRate float64) badgerMeta {
	return badgerMeta{
		Key:       key,
		Width:     info.Width,
		Height:    info.Height,
		RowBytes:  info.RowBytes,
		ColorType: uint8(info.ColorType),
		AlphaType: uint8(info.AlphaType),
		NumFrames: numFrames,
		FrameRate: frameRate,
	}
}

type badgerCache struct {
	db      *badger.DB
	catalog *repos.SequenceRepository
	reg     *registry
}

// OpenBadger stores sequences in a badger database at dir, or in memory
// when dir is empty. catalog is optional.
func OpenBadger(dir string, catalog *repos.SequenceRepository) (Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if len(dir) == 0 {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, xerror.Errorf("unable to open badger sequence store: %w", err)
	}
	return &badgerCache{db: db, catalog: catalog, reg: newRegistry()}, nil
}

func (c *badgerCache) OpenSequence(key string, info pixel.Info, numFrames int, frameRate float64) (SequenceFile, error) {
	if err := validateOpen(info, numFrames, frameRate); err != nil {
		return nil, err
	}
	id := sequenceID(key, info, numFrames, frameRate)
	return c.reg.acquire(id, func() (*sequence, error) {
		frames, present, err := openBadgerFrames(c.db, id, makeBadgerMeta(key, info, numFrames, frameRate))
		if err != nil {
			return nil, err
		}
		log.Debug("Opened badger sequence %s", id)
		return newSequence(id, key, info, numFrames, frameRate, frames, present, c.catalog), nil
	})
}

func (c *badgerCache) Remove(key string) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	c.reg.forget(key)

	index := []byte(keyPrefix + keyID(key) + ":")
	ids := []string{}
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(index); it.ValidForPrefix(index); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), string(index)))
		}
		return nil
	})
	if err != nil {
		return xerror.Errorf("unable to list sequences of %s: %w", key, err)
	}

	for _, id := range ids {
		if err := c.db.DropPrefix(sequencePrefix(id)); err != nil {
			return xerror.Errorf("unable to remove sequence %s: %w", id, err)
		}
	}
	if err := c.db.DropPrefix(index); err != nil {
		return xerror.Errorf("unable to remove sequences of %s: %w", key, err)
	}
	forgetCatalog(c.catalog, key)
	return nil
}

func (c *badgerCache) Close() error {
	err := c.reg.closeAll()
	if cerr := c.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func sequencePrefix(id string) []byte {
	return []byte(seqPrefix + id + ":")
}

func metaKey(id string) []byte {
	return []byte(seqPrefix + id + ":meta")
}

func framePrefix(id string) []byte {
	return []byte(seqPrefix + id + ":f:")
}

func frameKey(id string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s:f:%08d", seqPrefix, id, index))
}

type badgerFrames struct {
	db   *badger.DB
	id   string
	size int
}

func openBadgerFrames(db *badger.DB, id string, meta badgerMeta) (*badgerFrames, *bitmap, error) {
	frames := &badgerFrames{
		db:   db,
		id:   id,
		size: meta.RowBytes * meta.Height,
	}

	present, err := frames.loadPresence(meta)
	if err == nil {
		return frames, present, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		log.Warn("Resetting badger sequence %s: %v", id, err)
		if err := db.DropPrefix(sequencePrefix(id)); err != nil {
			return nil, nil, xerror.Errorf("unable to reset sequence %s: %w", id, err)
		}
	}

	buf, err := json.Marshal(meta)
	if err != nil {
		return nil, nil, err
	}
	err = db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(metaKey(id), buf); err != nil {
			return err
		}
		if len(meta.Key) == 0 {
			return nil
		}
		return txn.Set([]byte(keyPrefix+keyID(meta.Key)+":"+id), nil)
	})
	if err != nil {
		return nil, nil, xerror.Errorf("unable to create sequence %s: %w", id, err)
	}
	return frames, newBitmap(meta.NumFrames), nil
}

func (f *badgerFrames) loadPresence(want badgerMeta) (*bitmap, error) {
	present := newBitmap(want.NumFrames)
	err := f.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(f.id))
		if err != nil {
			return err
		}
		var got badgerMeta
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &got)
		}); err != nil {
			return err
		}
		if got != want {
			return xerror.New("stored layout does not match")
		}

		prefix := framePrefix(f.id)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			index, err := strconv.Atoi(string(it.Item().Key()[len(prefix):]))
			if err != nil {
				continue
			}
			present.mark(index)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return present, nil
}

func (f *badgerFrames) readFrame(index int, dst []byte) error {
	return f.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(frameKey(f.id, index))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != len(dst) {
				return xerror.Errorf("stored frame holds %d bytes, want %d", len(val), len(dst))
			}
			copy(dst, val)
			return nil
		})
	})
}

func (f *badgerFrames) writeFrame(index int, src []byte, _ *bitmap) error {
	return f.db.Update(func(txn *badger.Txn) error {
		return txn.Set(frameKey(f.id, index), src)
	})
}

func (f *badgerFrames) close() error {
	return nil
}

func (f *badgerFrames) discard() error {
	return f.db.DropPrefix(sequencePrefix(f.id))
}
