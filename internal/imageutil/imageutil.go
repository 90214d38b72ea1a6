// Package imageutil turns decoder output rows into image files.
package imageutil

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/anthonynsimon/bild/transform"
	"golang.org/x/image/bmp"
)

const (
	FormatPNG = "png"
	FormatBMP = "bmp"
)

// GrayFromRow interprets row as a side x side image with intensities in
// [0,1]. Values outside the range are clamped.
func GrayFromRow(row []float64, side int) (*image.Gray, error) {
	if len(row) != side*side {
		return nil, fmt.Errorf("row holds %d values, want %d", len(row), side*side)
	}
	img := image.NewGray(image.Rect(0, 0, side, side))
	for i, v := range row {
		img.Pix[i] = uint8(math.Min(255, math.Max(0, v*255+0.5)))
	}
	return img, nil
}

// Scale enlarges img by an integer factor with nearest-neighbour sampling.
func Scale(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	return transform.Resize(img, b.Dx()*factor, b.Dy()*factor, transform.NearestNeighbor)
}

// Encode writes img to w in format.
func Encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "", FormatPNG:
		return png.Encode(w, img)
	case FormatBMP:
		return bmp.Encode(w, img)
	}
	return fmt.Errorf("unsupported image format %q", format)
}

// Ext returns the file extension, without the dot, for format.
func Ext(format string) (string, error) {
	switch format {
	case "", FormatPNG:
		return FormatPNG, nil
	case FormatBMP:
		return FormatBMP, nil
	}
	return "", fmt.Errorf("unsupported image format %q", format)
}

// WriteFile creates or truncates path and encodes img into it.
func WriteFile(path string, img image.Image, format string) error {
	if _, err := Ext(format); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, img, format); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
