package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Example is one decoded shard entry. Members sharing a key, such as
// 000123.png and 000123.cls, become one Example whose Pixels hold the
// image reduced to the classifier input.
type Example struct {
	Key    string
	Pixels []float64
	Label  int
}

// ErrTooManyUnpaired is returned when more keys are waiting for their
// partner member than the shard reader allows.
var ErrTooManyUnpaired = errors.New("webdataset: too many unpaired members")

// UnpairedError reports keys that reached the end of a shard with only an
// image or only a label.
type UnpairedError struct {
	Keys []string
}

func (e *UnpairedError) Error() string {
	return fmt.Sprintf("webdataset: %d samples incomplete (first %s)", len(e.Keys), e.Keys[0])
}

const defaultMaxUnpaired = 1024

type memberKind int

const (
	memberOther memberKind = iota
	memberImage
	memberLabel
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

func classify(name string) (string, memberKind) {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	key := strings.TrimSuffix(base, ext)
	switch ext = strings.ToLower(ext); {
	case ext == ".cls":
		return key, memberLabel
	case imageExts[ext]:
		return key, memberImage
	}
	return key, memberOther
}

func parseLabel(payload []byte) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		return 0, err
	}
	return y, checkLabel(y)
}

// WalkShard decodes the shard at path and calls fn with each completed
// example in the order its second member appears. At most maxUnpaired keys
// may wait for a partner; zero selects the default bound.
func WalkShard(ctx context.Context, path string, maxUnpaired int, fn func(Example) error) error {
	if maxUnpaired <= 0 {
		maxUnpaired = defaultMaxUnpaired
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open shard: %w", err)
	}
	defer f.Close()

	images := make(map[string][]byte)
	labels := make(map[string]int)
	tr := tar.NewReader(bufio.NewReader(f))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}
		key, kind := classify(hdr.Name)
		if kind == memberOther {
			continue
		}
		payload, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("read %s: %w", hdr.Name, err)
		}
		if kind == memberLabel {
			y, err := parseLabel(payload)
			if err != nil {
				return fmt.Errorf("label %s: %w", hdr.Name, err)
			}
			labels[key] = y
		} else {
			images[key] = payload
		}

		raw, hasImage := images[key]
		y, hasLabel := labels[key]
		if !hasImage || !hasLabel {
			if len(images)+len(labels) > maxUnpaired {
				return ErrTooManyUnpaired
			}
			continue
		}
		delete(images, key)
		delete(labels, key)

		pixels, err := extractFeatures(raw)
		if err != nil {
			return fmt.Errorf("sample %s: %w", key, err)
		}
		if err := fn(Example{Key: key, Pixels: pixels, Label: y}); err != nil {
			return err
		}
	}

	if len(images)+len(labels) > 0 {
		keys := make([]string, 0, len(images)+len(labels))
		for key := range images {
			keys = append(keys, key)
		}
		for key := range labels {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return &UnpairedError{Keys: keys}
	}
	return nil
}
