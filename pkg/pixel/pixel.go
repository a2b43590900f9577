package pixel

import (
	"fmt"
	"image"

	"github.com/tauraamui/xerror"
)

type ColorType uint8

const (
	ColorUnknown ColorType = iota
	ColorRGBA8888
	ColorBGRA8888
	ColorAlpha8
)

func (c ColorType) BytesPerPixel() int {
	switch c {
	case ColorRGBA8888, ColorBGRA8888:
		return 4
	case ColorAlpha8:
		return 1
	default:
		return 0
	}
}

func (c ColorType) String() string {
	switch c {
	case ColorRGBA8888:
		return "RGBA_8888"
	case ColorBGRA8888:
		return "BGRA_8888"
	case ColorAlpha8:
		return "ALPHA_8"
	default:
		return "UNKNOWN"
	}
}

type AlphaType uint8

const (
	AlphaUnknown AlphaType = iota
	AlphaOpaque
	AlphaPremultiplied
	AlphaUnpremultiplied
)

func (a AlphaType) String() string {
	switch a {
	case AlphaOpaque:
		return "opaque"
	case AlphaPremultiplied:
		return "premultiplied"
	case AlphaUnpremultiplied:
		return "unpremultiplied"
	default:
		return "unknown"
	}
}

var ErrInvalidFormat = xerror.New("invalid pixel format")

// Format is the layout a caller commits to when reading pixels.
type Format struct {
	RowBytes  int
	ColorType ColorType
	AlphaType AlphaType
}

func (f Format) String() string {
	return fmt.Sprintf("%s/%s/%d", f.ColorType, f.AlphaType, f.RowBytes)
}

// Info binds a Format to concrete dimensions.
type Info struct {
	Width  int
	Height int
	Format
}

func MakeInfo(width, height int, f Format) Info {
	return Info{Width: width, Height: height, Format: f}
}

func (i Info) MinRowBytes() int {
	return i.Width * i.ColorType.BytesPerPixel()
}

// ByteSize is the number of bytes a full frame occupies.
func (i Info) ByteSize() int {
	return i.RowBytes * i.Height
}

func (i Info) Validate() error {
	if i.Width <= 0 || i.Height <= 0 {
		return xerror.Errorf("%w: empty dimensions %dx%d", ErrInvalidFormat, i.Width, i.Height)
	}
	if i.ColorType.BytesPerPixel() == 0 {
		return xerror.Errorf("%w: unknown color type", ErrInvalidFormat)
	}
	if i.AlphaType == AlphaUnknown || i.AlphaType > AlphaUnpremultiplied {
		return xerror.Errorf("%w: unknown alpha type", ErrInvalidFormat)
	}
	if i.RowBytes < i.MinRowBytes() {
		return xerror.Errorf("%w: row bytes %d less than %d", ErrInvalidFormat, i.RowBytes, i.MinRowBytes())
	}
	return nil
}

// Convert writes the premultiplied RGBA canvas src into dst laid out as info.
func Convert(src *image.RGBA, dst []byte, info Info) error {
	if err := info.Validate(); err != nil {
		return err
	}
	b := src.Bounds()
	if b.Dx() != info.Width || b.Dy() != info.Height {
		return xerror.Errorf(
			"%w: source is %dx%d, want %dx%d", ErrInvalidFormat, b.Dx(), b.Dy(), info.Width, info.Height,
		)
	}
	if len(dst) < info.ByteSize() {
		return xerror.Errorf("%w: buffer holds %d bytes, need %d", ErrInvalidFormat, len(dst), info.ByteSize())
	}

	bpp := info.ColorType.BytesPerPixel()
	for y := 0; y < info.Height; y++ {
		srcRow := src.Pix[y*src.Stride : y*src.Stride+info.Width*4]
		dstRow := dst[y*info.RowBytes : y*info.RowBytes+info.Width*bpp]
		for x := 0; x < info.Width; x++ {
			r, g, bl, a := srcRow[x*4], srcRow[x*4+1], srcRow[x*4+2], srcRow[x*4+3]
			switch info.AlphaType {
			case AlphaOpaque:
				a = 0xff
			case AlphaUnpremultiplied:
				r, g, bl = unpremultiply(r, a), unpremultiply(g, a), unpremultiply(bl, a)
			}
			switch info.ColorType {
			case ColorRGBA8888:
				dstRow[x*4], dstRow[x*4+1], dstRow[x*4+2], dstRow[x*4+3] = r, g, bl, a
			case ColorBGRA8888:
				dstRow[x*4], dstRow[x*4+1], dstRow[x*4+2], dstRow[x*4+3] = bl, g, r, a
			case ColorAlpha8:
				dstRow[x] = a
			}
		}
	}
	return nil
}

func unpremultiply(c, a uint8) uint8 {
	if a == 0 {
		return 0
	}
	if a == 0xff {
		return c
	}
	v := (uint32(c)*0xff + uint32(a)/2) / uint32(a)
	if v > 0xff {
		v = 0xff
	}
	return uint8(v)
}
