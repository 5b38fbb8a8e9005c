package imagebatch

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
)

// Mode is the pixel layout of an image, named the way dataset configs name it.
type Mode string

const (
	RGB      Mode = "RGB"
	RGBA     Mode = "RGBA"
	L        Mode = "L" // 8-bit grayscale
	Paletted Mode = "P"
	CMYK     Mode = "CMYK"
)

// ParseMode accepts the modes images can be normalized to.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case RGB, RGBA, L:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported image mode %q", s)
	}
}

type opaquer interface {
	Opaque() bool
}

// ModeOf reports the mode of a decoded image.
func ModeOf(img image.Image) Mode {
	switch img := img.(type) {
	case *image.Gray, *image.Gray16:
		return L
	case *image.YCbCr:
		return RGB
	case *image.Paletted:
		return Paletted
	case *image.CMYK:
		return CMYK
	case opaquer:
		if img.Opaque() {
			return RGB
		}
		return RGBA
	default:
		return RGBA
	}
}

// satisfies reports whether img can be stored as mode m without conversion.
// An opaque color image already satisfies RGBA.
func satisfies(img image.Image, m Mode) bool {
	got := ModeOf(img)
	if got == m {
		return true
	}
	return m == RGBA && got == RGB
}

// ToMode converts img to the given mode. Conversion to RGB drops the alpha channel.
func ToMode(img image.Image, m Mode) (image.Image, error) {
	switch m {
	case L:
		b := img.Bounds()
		gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
		return gray, nil
	case RGB:
		dst := imaging.Clone(img)
		for i := 3; i < len(dst.Pix); i += 4 {
			dst.Pix[i] = 0xff
		}
		return dst, nil
	case RGBA:
		return imaging.Clone(img), nil
	default:
		return nil, fmt.Errorf("cannot convert to mode %q", m)
	}
}
