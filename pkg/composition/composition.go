package composition

import (
	"sync"
)

type LayerType int

const (
	LayerOther LayerType = iota
	LayerBitmap
	LayerVideo
	LayerPreCompose
)

func (l LayerType) String() string {
	switch l {
	case LayerBitmap:
		return "bitmap"
	case LayerVideo:
		return "video"
	case LayerPreCompose:
		return "precompose"
	default:
		return "other"
	}
}

// Asset is the single bitmap or video source backing a leaf composition.
type Asset struct {
	Type      LayerType
	FrameRate float64
}

// Node is the read side of a composition tree that the decoder depends on.
type Node interface {
	Width() int
	Height() int
	// Duration in microseconds.
	Duration() int64
	FrameRate() float64
	ContentVersion() uint64
	// FilePath reports the backing file path, ok is false unless the
	// composition was loaded from a file and has not been modified since.
	FilePath() (path string, ok bool)
	// FileRevision identifies the file content the composition was loaded
	// from, it is empty whenever FilePath reports no path.
	FileRevision() string
	NumChildren() int
	ChildAt(int) Node
	LayerType() LayerType
	Asset() *Asset
	// Holders is the number of strong holders registered against the node,
	// a parent composition counts as one.
	Holders() int
}

type Composition struct {
	mu        sync.RWMutex
	width     int
	height    int
	duration  int64
	frameRate float64
	layerType LayerType
	asset     *Asset
	version   uint64
	path      string
	revision  string
	modified  bool
	holders   int
	parent    *Composition
	children  []*Composition
}

// New returns a pre-composed composition with a single holder
// registered for the caller, call Release once it is no longer needed.
func New(width, height int, duration int64, frameRate float64) *Composition {
	return &Composition{
		width:     width,
		height:    height,
		duration:  duration,
		frameRate: frameRate,
		layerType: LayerPreCompose,
		version:   1,
		holders:   1,
	}
}

// NewLayer returns a leaf layer of the given type with no source attached.
func NewLayer(width, height int, duration int64, frameRate float64, layerType LayerType) *Composition {
	c := New(width, height, duration, frameRate)
	c.layerType = layerType
	return c
}

// NewAsset returns a pre-composed leaf whose whole content is a single
// bitmap or video source.
func NewAsset(width, height int, duration int64, asset Asset) *Composition {
	c := New(width, height, duration, asset.FrameRate)
	c.asset = &asset
	return c
}

// NewContainer returns an empty composition with no registered holders.
func NewContainer(width, height int) *Composition {
	return &Composition{
		width:     width,
		height:    height,
		layerType: LayerPreCompose,
		version:   1,
	}
}

func (c *Composition) Width() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.width
}

func (c *Composition) Height() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

func (c *Composition) Duration() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.duration
}

func (c *Composition) FrameRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frameRate
}

func (c *Composition) ContentVersion() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Composition) FilePath() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.path) == 0 || c.modified {
		return "", false
	}
	return c.path, true
}

func (c *Composition) FileRevision() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.path) == 0 || c.modified {
		return ""
	}
	return c.revision
}

func (c *Composition) NumChildren() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.children)
}

func (c *Composition) ChildAt(i int) Node {
	child := c.Child(i)
	if child == nil {
		return nil
	}
	return child
}

// Child is the typed form of ChildAt.
func (c *Composition) Child(i int) *Composition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.children) {
		return nil
	}
	return c.children[i]
}

func (c *Composition) LayerType() LayerType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.layerType
}

func (c *Composition) Asset() *Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.asset == nil {
		return nil
	}
	a := *c.asset
	return &a
}

func (c *Composition) Holders() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.holders
}

func (c *Composition) Parent() *Composition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parent
}

func (c *Composition) Retain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holders++
}

func (c *Composition) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holders > 0 {
		c.holders--
	}
}

// AddLayer appends child, removing it from any previous parent first.
// Adding a layer that is already a direct child is a no-op.
func (c *Composition) AddLayer(child *Composition) {
	if child == nil || child == c {
		return
	}
	if prev := child.Parent(); prev != nil {
		if prev == c {
			return
		}
		prev.RemoveLayer(child)
	}

	c.mu.Lock()
	c.children = append(c.children, child)
	c.mu.Unlock()

	child.mu.Lock()
	child.parent = c
	child.holders++
	child.mu.Unlock()

	c.contentChanged()
}

// RemoveLayer detaches child, returns false when it was not a direct child.
func (c *Composition) RemoveLayer(child *Composition) bool {
	c.mu.Lock()
	idx := -1
	for i, ch := range c.children {
		if ch == child {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	c.children = append(c.children[:idx], c.children[idx+1:]...)
	c.mu.Unlock()

	child.detachFromParent()
	c.contentChanged()
	return true
}

func (c *Composition) RemoveAllLayers() {
	c.mu.Lock()
	children := c.children
	c.children = nil
	c.mu.Unlock()

	for _, child := range children {
		child.detachFromParent()
	}
	if len(children) > 0 {
		c.contentChanged()
	}
}

func (c *Composition) detachFromParent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parent = nil
	if c.holders > 0 {
		c.holders--
	}
}

func (c *Composition) SetDuration(d int64) {
	c.mu.Lock()
	c.duration = d
	c.mu.Unlock()
	c.contentChanged()
}

func (c *Composition) SetFrameRate(rate float64) {
	c.mu.Lock()
	c.frameRate = rate
	if c.asset != nil {
		c.asset.FrameRate = rate
	}
	c.mu.Unlock()
	c.contentChanged()
}

func (c *Composition) SetSize(width, height int) {
	c.mu.Lock()
	c.width, c.height = width, height
	c.mu.Unlock()
	c.contentChanged()
}

// contentChanged bumps the version of c and every ancestor.
func (c *Composition) contentChanged() {
	for n := c; n != nil; {
		n.mu.Lock()
		n.version++
		n.modified = true
		next := n.parent
		n.mu.Unlock()
		n = next
	}
}
