package scan

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// centerRegion returns a rectangle covering the given fractions of bounds, centered
func centerRegion(bounds image.Rectangle, widthRatio, heightRatio float64) image.Rectangle {
	width := int(float64(bounds.Dx()) * widthRatio)
	height := int(float64(bounds.Dy()) * heightRatio)

	x := bounds.Min.X + (bounds.Dx()-width)/2
	y := bounds.Min.Y + (bounds.Dy()-height)/2

	return image.Rect(x, y, x+width, y+height)
}

// copyRegion copies r out of img into a new zero-origin image
func copyRegion(img image.Image, r image.Rectangle) (*image.RGBA, error) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return nil, ErrInvalidImage
	}

	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out, nil
}

// toGray converts img to a zero-origin grayscale image for the code readers
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// orient rotates img clockwise by rot so that it is upright
func orient(img image.Image, rot Rotation) image.Image {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	mx, my := float64(b.Min.X), float64(b.Min.Y)

	var (
		s2d f64.Aff3
		dst *image.RGBA
	)
	switch rot {
	case Rotate90:
		dst = image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
		s2d = f64.Aff3{0, -1, h + my, 1, 0, -mx}
	case Rotate180:
		dst = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		s2d = f64.Aff3{-1, 0, w + mx, 0, -1, h + my}
	case Rotate270:
		dst = image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
		s2d = f64.Aff3{0, 1, -my, -1, 0, w + mx}
	default:
		return img
	}

	draw.NearestNeighbor.Transform(dst, s2d, img, b, draw.Src, nil)
	return dst
}

// CropForOCR returns the upright center crop of a frame handed to text recognition
func CropForOCR(f Frame, widthRatio, heightRatio float64) (image.Image, error) {
	if f.Image == nil || f.Image.Bounds().Empty() {
		return nil, ErrInvalidImage
	}

	upright := orient(f.Image, f.Rotation)
	return copyRegion(upright, centerRegion(upright.Bounds(), widthRatio, heightRatio))
}
