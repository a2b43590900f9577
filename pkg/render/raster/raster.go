// Package raster is a software rendering engine. It draws a deterministic
// test card for any composition, which makes it usable wherever real
// composition content is not available.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/tauraamui/framecache/pkg/composition"
	"github.com/tauraamui/framecache/pkg/pixel"
	"github.com/tauraamui/framecache/pkg/render"
	"github.com/tauraamui/xerror"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

var (
	ErrNoSurface     = xerror.New("player has no raster surface")
	ErrNoComposition = xerror.New("player has no composition")
)

// maxCanvasSide bounds the intermediate canvas a composition is drawn at.
const maxCanvasSide = 4096

func NewEngine() render.Engine {
	return engine{}
}

type engine struct{}

func (engine) NewOffscreenSurface(width, height int) (render.Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, xerror.Errorf("unable to create %dx%d offscreen surface", width, height)
	}
	return &surface{canvas: image.NewRGBA(image.Rect(0, 0, width, height))}, nil
}

func (engine) NewPlayer() render.Player {
	return &player{}
}

type surface struct {
	mu     sync.Mutex
	canvas *image.RGBA
}

func (s *surface) Width() int  { return s.canvas.Rect.Dx() }
func (s *surface) Height() int { return s.canvas.Rect.Dy() }

func (s *surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.canvas.Pix {
		s.canvas.Pix[i] = 0
	}
}

func (s *surface) ReadPixels(format pixel.Format, dst []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pixel.Convert(s.canvas, dst, pixel.MakeInfo(s.Width(), s.Height(), format))
}

type player struct {
	mu       sync.Mutex
	surface  render.Surface
	comp     composition.Node
	progress float64
}

func (p *player) SetSurface(s render.Surface) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.surface = s
}

func (p *player) Surface() render.Surface {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.surface
}

func (p *player) SetComposition(c composition.Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.comp = c
}

func (p *player) Composition() composition.Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.comp
}

func (p *player) SetProgress(progress float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = math.Max(0, math.Min(1, progress))
}

func (p *player) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.surface.(*surface)
	if !ok || s == nil {
		return ErrNoSurface
	}
	if p.comp == nil {
		return ErrNoComposition
	}

	s.Clear()
	card, err := drawCard(p.comp, p.progress, s.Width(), s.Height())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	xdraw.ApproxBiLinear.Scale(s.canvas, s.canvas.Bounds(), card, card.Bounds(), xdraw.Src, nil)
	return nil
}

func (p *player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.surface = nil
	p.comp = nil
}

// drawCard renders the composition at its own size, falling back to the
// surface size when the composition has none.
func drawCard(c composition.Node, progress float64, fallbackW, fallbackH int) (*image.RGBA, error) {
	w, h := c.Width(), c.Height()
	if w <= 0 || h <= 0 {
		w, h = fallbackW, fallbackH
	}
	w, h = clampSide(w), clampSide(h)

	totalFrames := int(math.Round(float64(c.Duration()) * c.FrameRate() / 1_000_000.0))
	frame := render.ProgressToFrame(progress, totalFrames)

	img := renderBaseCanvas(w, h, progress, c.ContentVersion())
	label := fmt.Sprintf("%d/%d", frame, totalFrames)
	if err := drawText(img, w/16, h/2, float64(h)/6, label); err != nil {
		return nil, xerror.Errorf("unable to draw frame label: %w", err)
	}
	return img, nil
}

func clampSide(v int) int {
	if v > maxCanvasSide {
		return maxCanvasSide
	}
	return v
}

// renderBaseCanvas draws three overlapping discs orbiting the centre, one
// turn per timeline, tinted by content version.
func renderBaseCanvas(w, h int, progress float64, version uint64) *image.RGBA {
	hw, hh := float64(w)/2, float64(h)/2
	r := math.Min(hw, hh) / 2
	θ := 2 * math.Pi / 3
	turn := 2 * math.Pi * progress
	cr := &circle{hw - r*math.Sin(turn), hh - r*math.Cos(turn), r * 1.5}
	cg := &circle{hw - r*math.Sin(turn+θ), hh - r*math.Cos(turn+θ), r * 1.5}
	cb := &circle{hw - r*math.Sin(turn-θ), hh - r*math.Cos(turn-θ), r * 1.5}
	tint := uint8(version * 37 % 128)

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.SetRGBA(x, y, color.RGBA{
				cr.Brightness(float64(x), float64(y)),
				cg.Brightness(float64(x), float64(y)) | tint,
				cb.Brightness(float64(x), float64(y)),
				255,
			})
		}
	}
	return img
}

var (
	fontOnce sync.Once
	fontFace *truetype.Font
	fontErr  error
)

func drawText(canvas *image.RGBA, x, y int, size float64, text string) error {
	fontOnce.Do(func() {
		fontFace, fontErr = freetype.ParseFont(goregular.TTF)
	})
	if fontErr != nil {
		return fontErr
	}
	if size < 1 {
		size = 1
	}

	drawer := &font.Drawer{
		Dst: canvas,
		Src: image.White,
		Face: truetype.NewFace(fontFace, &truetype.Options{
			Size:    size,
			Hinting: font.HintingFull,
		}),
	}
	bounds, _ := drawer.BoundString(text)
	textHeight := bounds.Max.Y - bounds.Min.Y
	drawer.Dot = fixed.Point26_6{
		X: fixed.I(x),
		Y: fixed.I(y) + textHeight/2,
	}
	drawer.DrawString(text)
	return nil
}

type circle struct {
	X, Y, R float64
}

func (c *circle) Brightness(x, y float64) uint8 {
	dx, dy := c.X-x, c.Y-y
	if math.Sqrt(dx*dx+dy*dy)/c.R > 1 {
		return 0
	}
	return 255
}
