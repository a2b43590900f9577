package composition

import (
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/tauraamui/xerror"
)

var fs = afero.NewOsFs()

const maxLoadDepth = 64

var ErrInvalidDocument = xerror.New("invalid composition document")

// document is the on-disk JSON shape of a composition tree.
type document struct {
	Width          int        `json:"width"`
	Height         int        `json:"height"`
	Duration       int64      `json:"duration_us"`
	FrameRate      float64    `json:"frame_rate"`
	Type           string     `json:"type,omitempty"`
	Asset          string     `json:"asset,omitempty"`
	AssetFrameRate float64    `json:"asset_frame_rate,omitempty"`
	Layers         []document `json:"layers,omitempty"`
}

// Load reads a composition document from path. The returned composition
// reports path from FilePath and the digest of the document from
// FileRevision until it is modified.
func Load(path string) (*Composition, error) {
	c, revision, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	c.markPersisted(path, revision)
	return c, nil
}

// Reload replaces the content of c in place with the document at path,
// the content version moves forward so decoders holding c recompute. The
// new revision becomes visible together with the final version bump.
func Reload(c *Composition, path string) error {
	fresh, revision, err := decodeFile(path)
	if err != nil {
		return err
	}

	c.RemoveAllLayers()
	for _, child := range fresh.takeLayers() {
		c.AddLayer(child)
		child.Release()
	}

	c.mu.Lock()
	c.width, c.height = fresh.width, fresh.height
	c.duration = fresh.duration
	c.frameRate = fresh.frameRate
	c.layerType = fresh.layerType
	c.asset = fresh.asset
	c.path, c.revision, c.modified = path, revision, false
	c.version++
	parent := c.parent
	c.mu.Unlock()

	if parent != nil {
		parent.contentChanged()
	}
	return nil
}

// Save writes c and its subtree to path as a composition document.
func Save(c *Composition, path string) error {
	data, err := json.MarshalIndent(encode(c, 0), "", "  ")
	if err != nil {
		return xerror.Errorf("unable to encode composition: %w", err)
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return xerror.Errorf("unable to create composition directory: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return xerror.Errorf("unable to write composition %s: %w", path, err)
	}
	return nil
}

func decodeFile(path string) (*Composition, string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, "", xerror.Errorf("unable to read composition %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", xerror.Errorf("%w: %s: %v", ErrInvalidDocument, path, err)
	}

	c, err := build(doc, 0)
	if err != nil {
		return nil, "", err
	}
	return c, revisionOf(data), nil
}

// revisionOf is a short content digest of a composition document.
func revisionOf(data []byte) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, data)
	return hex.EncodeToString(id[:6])
}

func build(doc document, depth int) (*Composition, error) {
	if depth > maxLoadDepth {
		return nil, xerror.Errorf("%w: nesting deeper than %d", ErrInvalidDocument, maxLoadDepth)
	}
	if doc.Width < 0 || doc.Height < 0 || doc.Duration < 0 || doc.FrameRate < 0 {
		return nil, xerror.Errorf("%w: negative dimension, duration or frame rate", ErrInvalidDocument)
	}

	var c *Composition
	switch at := parseLayerType(doc.Asset); {
	case len(doc.Asset) > 0 && (at == LayerBitmap || at == LayerVideo):
		rate := doc.AssetFrameRate
		if rate == 0 {
			rate = doc.FrameRate
		}
		c = NewAsset(doc.Width, doc.Height, doc.Duration, Asset{Type: at, FrameRate: rate})
		if doc.FrameRate > 0 {
			c.frameRate = doc.FrameRate
		}
	case len(doc.Asset) > 0:
		return nil, xerror.Errorf("%w: unknown asset type %q", ErrInvalidDocument, doc.Asset)
	default:
		c = NewLayer(doc.Width, doc.Height, doc.Duration, doc.FrameRate, parseLayerType(doc.Type))
	}

	for _, layer := range doc.Layers {
		child, err := build(layer, depth+1)
		if err != nil {
			return nil, err
		}
		c.AddLayer(child)
		// the parent is now the only holder
		child.Release()
	}
	return c, nil
}

func encode(c *Composition, depth int) document {
	c.mu.RLock()
	doc := document{
		Width:     c.width,
		Height:    c.height,
		Duration:  c.duration,
		FrameRate: c.frameRate,
		Type:      c.layerType.String(),
	}
	if c.asset != nil {
		doc.Asset = c.asset.Type.String()
		doc.AssetFrameRate = c.asset.FrameRate
	}
	children := append([]*Composition(nil), c.children...)
	c.mu.RUnlock()

	if depth >= maxLoadDepth {
		return doc
	}
	for _, child := range children {
		doc.Layers = append(doc.Layers, encode(child, depth+1))
	}
	return doc
}

func parseLayerType(s string) LayerType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "precompose":
		return LayerPreCompose
	case "bitmap":
		return LayerBitmap
	case "video":
		return LayerVideo
	default:
		return LayerOther
	}
}

func (c *Composition) takeLayers() []*Composition {
	c.mu.RLock()
	children := append([]*Composition(nil), c.children...)
	c.mu.RUnlock()

	for _, child := range children {
		// hold each child while it moves to its new parent
		child.Retain()
	}
	c.RemoveAllLayers()
	return children
}

func (c *Composition) markPersisted(path, revision string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
	c.revision = revision
	c.modified = false
}
