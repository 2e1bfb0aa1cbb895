package image

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/framepool"
)

// FromStdImage converts img into a new frame of the given format at the
// device pitch.
func FromStdImage(img image.Image, format framepool.Format) (*ImageBuf, error) {
	bounds := img.Bounds()
	buf, err := NewImageBuf(bounds.Dx(), bounds.Dy(), format)
	if err != nil {
		return nil, err
	}
	buf.DrawFrom(img)
	return buf, nil
}

// DrawFrom overwrites the frame with img. An image of a different size is
// scaled to fit with Catmull-Rom filtering.
func (b *ImageBuf) DrawFrom(img image.Image) {
	rect := image.Rect(0, 0, b.width, b.height)
	src := img.Bounds()

	dst := b.view()
	if dst == nil {
		// No std layout matches; go through NRGBA and repack.
		tmp := image.NewNRGBA(rect)
		dst = tmp
		defer b.pack(tmp)
	}

	if src.Dx() == b.width && src.Dy() == b.height {
		xdraw.Draw(dst, rect, img, src.Min, xdraw.Src)
		return
	}
	xdraw.CatmullRom.Scale(dst, rect, img, src, xdraw.Src, nil)
}

// view returns a std image aliasing the frame's bytes, or nil when the
// format has no std equivalent.
func (b *ImageBuf) view() xdraw.Image {
	rect := image.Rect(0, 0, b.width, b.height)
	switch b.format {
	case framepool.FormatGray8:
		return &image.Gray{Pix: b.data, Stride: b.stride, Rect: rect}
	case framepool.FormatRGBA8:
		return &image.NRGBA{Pix: b.data, Stride: b.stride, Rect: rect}
	case framepool.FormatRGBAPremul:
		return &image.RGBA{Pix: b.data, Stride: b.stride, Rect: rect}
	}
	return nil
}

func (b *ImageBuf) pack(src *image.NRGBA) {
	premul := b.format.Info().IsPremultiplied
	bpp := b.format.BytesPerPixel()
	for y := range b.height {
		row := src.Pix[y*src.Stride:]
		dst := b.data[y*b.stride:]
		for x := range b.width {
			r, g, bl, a := row[x*4], row[x*4+1], row[x*4+2], row[x*4+3]
			if premul {
				r, g, bl = premultiply(r, a), premultiply(g, a), premultiply(bl, a)
			}
			b.encode(dst[x*bpp:x*bpp+bpp], r, g, bl, a)
		}
	}
}

func premultiply(c, a uint8) uint8 {
	return uint8((uint32(c)*uint32(a) + 127) / 255)
}

// ToStdImage copies the frame into a std image. Gray8 and Gray16 become
// *image.Gray and *image.Gray16, premultiplied formats *image.RGBA, and
// everything else *image.NRGBA.
func (b *ImageBuf) ToStdImage() image.Image {
	rect := image.Rect(0, 0, b.width, b.height)

	switch b.format {
	case framepool.FormatGray8:
		gray := image.NewGray(rect)
		for y := range b.height {
			copy(gray.Pix[y*gray.Stride:], b.RowBytes(y))
		}
		return gray

	case framepool.FormatGray16:
		gray16 := image.NewGray16(rect)
		for y := range b.height {
			row := b.RowBytes(y)
			dst := gray16.Pix[y*gray16.Stride:]
			for x := range b.width {
				// image.Gray16 is big-endian
				dst[x*2] = row[x*2+1]
				dst[x*2+1] = row[x*2]
			}
		}
		return gray16

	case framepool.FormatRGBA8, framepool.FormatRGBAPremul:
		var pix []byte
		var out image.Image
		if b.format.Info().IsPremultiplied {
			rgba := image.NewRGBA(rect)
			pix, out = rgba.Pix, rgba
		} else {
			nrgba := image.NewNRGBA(rect)
			pix, out = nrgba.Pix, nrgba
		}
		for y := range b.height {
			copy(pix[y*b.width*4:], b.RowBytes(y))
		}
		return out

	case framepool.FormatBGRAPremul:
		rgba := image.NewRGBA(rect)
		b.unpack(rgba.Pix, rgba.Stride)
		return rgba
	}

	nrgba := image.NewNRGBA(rect)
	b.unpack(nrgba.Pix, nrgba.Stride)
	return nrgba
}

func (b *ImageBuf) unpack(pix []byte, stride int) {
	for y := range b.height {
		for x := range b.width {
			r, g, bl, a := b.GetRGBA(x, y)
			off := y*stride + x*4
			pix[off], pix[off+1], pix[off+2], pix[off+3] = r, g, bl, a
		}
	}
}

// ToRGBA converts the frame to premultiplied *image.RGBA.
func (b *ImageBuf) ToRGBA() *image.RGBA {
	src := b.ToStdImage()
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	rgba := image.NewRGBA(src.Bounds())
	xdraw.Draw(rgba, rgba.Bounds(), src, image.Point{}, xdraw.Src)
	return rgba
}
