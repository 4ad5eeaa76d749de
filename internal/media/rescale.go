package media

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// MaxImageSize is the target cap for a stored image, in bytes (256 KiB)
const MaxImageSize = 1024 * 256

// scaleDecrement is the fixed step the linear scale factor shrinks by
const scaleDecrement = 0.75

// Descale shrinks an image so its encoded size is estimated to land under
// MaxImageSize; images already under the cap pass through untouched.
//
// The estimate treats encoded size as proportional to pixel area
// (len * scale^2), which it is not: the re-encoded output can overshoot or
// undershoot the cap. That approximation is intentional and kept as is.
func Descale(buf []byte) ([]byte, error) {
	if len(buf) < MaxImageSize {
		return buf, nil
	}

	scale := 1.0
	for float64(len(buf))*scale*scale > MaxImageSize {
		scale -= scaleDecrement
		if scale <= 0 {
			return nil, fmt.Errorf("image too large to descale (%d bytes)", len(buf))
		}
	}

	src, format, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	width := int(float64(bounds.Dx()) * scale)
	height := int(float64(bounds.Dy()) * scale)
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("descaled dimensions collapsed to zero")
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var out bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&out, dst)
	case "gif":
		err = gif.Encode(&out, dst, nil)
	default:
		err = jpeg.Encode(&out, dst, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode descaled image: %w", err)
	}
	return out.Bytes(), nil
}
