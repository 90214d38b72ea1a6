package dataset

import (
	"bytes"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/transform"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"digitforge/internal/model"
)

const featureSize = model.InputSize

// extractFeatures decodes an encoded image, converts it to grayscale and
// resamples it to the classifier's 28x28 input, scaled to [0,1].
func extractFeatures(raw []byte) ([]float64, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, errors.New("empty image")
	}
	gray := effect.Grayscale(img)
	if bounds.Dx() != model.ImageSide || bounds.Dy() != model.ImageSide {
		gray = transform.Resize(gray, model.ImageSide, model.ImageSide, transform.Linear)
	}
	features := make([]float64, featureSize)
	for y := 0; y < model.ImageSide; y++ {
		for x := 0; x < model.ImageSide; x++ {
			off := gray.PixOffset(gray.Rect.Min.X+x, gray.Rect.Min.Y+y)
			features[y*model.ImageSide+x] = float64(gray.Pix[off]) / 255
		}
	}
	return features, nil
}
