package dataset

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"digitforge/internal/model"
)

func pngOf(t *testing.T, side int, level uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, side, side))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// writeShard stores labels in key order, each image filled with label*25.
func writeShard(t *testing.T, path string, side int, labels ...int) {
	t.Helper()
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for i, y := range labels {
		key := fmt.Sprintf("%06d", i)
		addTarEntry(tw, key+".png", pngOf(t, side, uint8(y*25)))
		addTarEntry(tw, key+".cls", []byte(strconv.Itoa(y)))
	}
	tw.Close()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}
}

func TestLoadShardsKeepsShardOrder(t *testing.T) {
	dir := t.TempDir()
	var shards []string
	for i := 0; i < 4; i++ {
		p := filepath.Join(dir, fmt.Sprintf("shard-%06d.tar", i))
		writeShard(t, p, model.ImageSide, i, i+1)
		shards = append(shards, p)
	}

	split, err := LoadShards(context.Background(), shards, 3)
	if err != nil {
		t.Fatalf("LoadShards: %v", err)
	}
	want := []int{0, 1, 1, 2, 2, 3, 3, 4}
	if split.Len() != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), split.Len())
	}
	for i, y := range want {
		if split.Labels[i] != y {
			t.Fatalf("labels = %v want %v", split.Labels, want)
		}
	}
}

func TestLoadShardsResizesToInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard-000000.tar")
	writeShard(t, path, 56, 4)

	split, err := LoadShards(context.Background(), []string{path}, 1)
	if err != nil {
		t.Fatalf("LoadShards: %v", err)
	}
	if split.Width != model.InputSize || len(split.Pixels) != model.InputSize {
		t.Fatalf("width=%d pixels=%d", split.Width, len(split.Pixels))
	}
	want := 100.0 / 255
	for _, p := range split.Row(0) {
		if p < want-0.01 || p > want+0.01 {
			t.Fatalf("pixel %v want ~%v", p, want)
		}
	}
}

func TestLoadShardsRejectsBadLabel(t *testing.T) {
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	addTarEntry(tw, "000000.png", pngOf(t, 28, 0))
	addTarEntry(tw, "000000.cls", []byte("12"))
	tw.Close()
	path := filepath.Join(t.TempDir(), "shard-000000.tar")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadShards(context.Background(), []string{path}, 2); err == nil {
		t.Fatalf("expected label error")
	}
}

func TestLoadShardsFormat(t *testing.T) {
	dataPath := t.TempDir()
	writeShard(t, filepath.Join(dataPath, "train", "shard-000000.tar"), 28, 1, 2, 3)
	writeShard(t, filepath.Join(dataPath, "test", "shard-000000.tar"), 28, 7)

	train, test, err := Load(context.Background(), LoadOptions{DataPath: dataPath, Format: FormatShards, Workers: 2})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if train.Len() != 3 || test.Len() != 1 || test.Labels[0] != 7 {
		t.Fatalf("train=%d test=%v", train.Len(), test.Labels)
	}
}

