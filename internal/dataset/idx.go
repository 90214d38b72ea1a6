package dataset

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"digitforge/internal/model"
)

const (
	idxImagesMagic = 0x00000803
	idxLabelsMagic = 0x00000801
)

// ErrBadIDX is returned for files that are not valid IDX payloads.
var ErrBadIDX = errors.New("malformed idx file")

// maxIDXExamples bounds the example count a header may declare. The
// largest supported dataset holds 60000.
const maxIDXExamples = 1 << 20

// readIDX parses the header, lets check vet the dimensions, then reads the
// payload. The payload buffer grows with the bytes actually present, so a
// header promising more than the file holds fails without a large
// allocation.
func readIDX(r io.Reader, magic uint32, check func(dims []int) error) ([]int, []byte, error) {
	var got uint32
	if err := binary.Read(r, binary.BigEndian, &got); err != nil {
		return nil, nil, fmt.Errorf("%w: header: %v", ErrBadIDX, err)
	}
	if got != magic {
		return nil, nil, fmt.Errorf("%w: magic %#08x, want %#08x", ErrBadIDX, got, magic)
	}
	dims := make([]int, magic&0xff)
	for i := range dims {
		var d uint32
		if err := binary.Read(r, binary.BigEndian, &d); err != nil {
			return nil, nil, fmt.Errorf("%w: dimension %d: %v", ErrBadIDX, i, err)
		}
		dims[i] = int(d)
	}
	if dims[0] > maxIDXExamples {
		return nil, nil, fmt.Errorf("%w: %d examples exceeds the limit of %d", ErrBadIDX, dims[0], maxIDXExamples)
	}
	if err := check(dims); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadIDX, err)
	}
	total := int64(1)
	for _, d := range dims {
		total *= int64(d)
	}
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, total); err != nil {
		return nil, nil, fmt.Errorf("%w: payload: %v", ErrBadIDX, err)
	}
	return dims, buf.Bytes(), nil
}

func checkImageDims(dims []int) error {
	if rows, cols := dims[1], dims[2]; rows != model.ImageSide || cols != model.ImageSide {
		return fmt.Errorf("images are %dx%d, want %dx%d", rows, cols, model.ImageSide, model.ImageSide)
	}
	return nil
}

func checkLabelDims([]int) error { return nil }

// ReadImages parses an uncompressed IDX image file, scaling pixels to [0,1].
// Only 28x28 images are accepted.
func ReadImages(r io.Reader) (pixels []float64, n, width int, err error) {
	dims, data, err := readIDX(r, idxImagesMagic, checkImageDims)
	if err != nil {
		return nil, 0, 0, err
	}
	pixels = make([]float64, len(data))
	for i, b := range data {
		pixels[i] = float64(b) / 255
	}
	return pixels, dims[0], dims[1] * dims[2], nil
}

// ReadLabels parses an uncompressed IDX label file.
func ReadLabels(r io.Reader) ([]int, error) {
	_, data, err := readIDX(r, idxLabelsMagic, checkLabelDims)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(data))
	for i, b := range data {
		labels[i] = int(b)
	}
	return labels, nil
}

func openGzip(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("gzip %s: %w", path, err)
	}
	defer gz.Close()
	if err := fn(gz); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadIDX reads a gzipped image/label file pair into a Split.
func LoadIDX(imagesPath, labelsPath string) (*Split, error) {
	split := &Split{}
	var n int
	err := openGzip(imagesPath, func(r io.Reader) error {
		var err error
		split.Pixels, n, split.Width, err = ReadImages(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	err = openGzip(labelsPath, func(r io.Reader) error {
		var err error
		split.Labels, err = ReadLabels(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(split.Labels) != n {
		return nil, fmt.Errorf("%w: %d images but %d labels", ErrBadIDX, n, len(split.Labels))
	}
	for _, y := range split.Labels {
		if err := checkLabel(y); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadIDX, labelsPath, err)
		}
	}
	return split, nil
}
