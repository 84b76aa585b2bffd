package facematch

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned when an image has no pixels.
var ErrEmptyImage = errors.New("empty image")

// DecodeImage decodes a JPEG, PNG, BMP or WebP image.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return img, nil
}

// EncodeJPEG encodes an image as JPEG.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Crop copies the region of img covered by box. Box coordinates are relative to
// the image origin. Returns nil when the intersection is empty.
func Crop(img image.Image, box Box) image.Image {
	if box.Degenerate() {
		return nil
	}
	bounds := img.Bounds()
	rect := image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2)).
		Add(bounds.Min).
		Intersect(bounds)
	if rect.Empty() {
		return nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

// Downscale shrinks img so its longer side is at most maxSize, keeping aspect
// ratio. Images already within bounds are returned unchanged.
func Downscale(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		return img
	}

	longest := max(width, height)
	newWidth := max(1, width*maxSize/longest)
	newHeight := max(1, height*maxSize/longest)

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized
}
