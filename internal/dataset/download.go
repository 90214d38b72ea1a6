package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gammazero/workerpool"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"go.uber.org/zap"
)

// ErrNotGzip is returned when a mirror serves something other than a gzip
// stream, typically an HTML error page.
var ErrNotGzip = errors.New("downloaded file is not gzip")

// Downloader fetches missing IDX files from the dataset mirrors.
type Downloader struct {
	Client *http.Client
	Logger *zap.Logger
	// Progress receives the progress bars. Nil hides them.
	Progress io.Writer
	Workers  int

	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

func (d *Downloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d *Downloader) logger() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}

func (d *Downloader) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	if d.InitialInterval > 0 {
		b.InitialInterval = d.InitialInterval
	}
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 5 * time.Minute
	if d.MaxElapsed > 0 {
		b.MaxElapsedTime = d.MaxElapsed
	}
	return backoff.WithContext(b, ctx)
}

// Missing lists the dataset files not yet present under dataPath.
func Missing(dataPath string, info Info) []string {
	dir := info.RawDir(dataPath)
	var missing []string
	for _, name := range Files {
		if st, err := os.Stat(filepath.Join(dir, name)); err != nil || !st.Mode().IsRegular() {
			missing = append(missing, name)
		}
	}
	return missing
}

// Ensure downloads every missing file of info into its raw directory.
// Files already on disk are left untouched.
func (d *Downloader) Ensure(ctx context.Context, dataPath string, info Info) error {
	missing := Missing(dataPath, info)
	if len(missing) == 0 {
		return nil
	}
	dir := info.RawDir(dataPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	d.logger().Info("downloading dataset",
		zap.String("dataset", info.ID),
		zap.String("dir", dir),
		zap.Strings("files", missing),
	)

	out := d.Progress
	if out == nil {
		out = io.Discard
	}
	progress := mpb.New(mpb.WithOutput(out), mpb.WithWidth(60), mpb.WithRefreshRate(180*time.Millisecond))

	workers := d.Workers
	if workers <= 0 {
		workers = len(missing)
	}
	wp := workerpool.New(workers)
	var (
		mu   sync.Mutex
		errs []error
	)
	for _, name := range missing {
		name := name
		wp.Submit(func() {
			if err := d.fetch(ctx, progress, info, name, filepath.Join(dir, name)); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	wp.StopWait()
	progress.Wait()
	return errors.Join(errs...)
}

func (d *Downloader) fetch(ctx context.Context, progress *mpb.Progress, info Info, name, dest string) error {
	var lastErr error
	for _, mirror := range info.Mirrors {
		url := mirror + name
		err := backoff.Retry(func() error {
			return d.attempt(ctx, progress, url, dest)
		}, d.retryPolicy(ctx))
		if err == nil {
			d.logger().Info("downloaded", zap.String("url", url), zap.String("path", dest))
			return nil
		}
		d.logger().Warn("mirror failed", zap.String("url", url), zap.Error(err))
		lastErr = err
	}
	return fmt.Errorf("download %s: %w", name, lastErr)
}

func (d *Downloader) attempt(ctx context.Context, progress *mpb.Progress, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return backoff.Permanent(fmt.Errorf("GET %s: %s", url, resp.Status))
	default:
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	bar := progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(filepath.Base(dest), decor.WC{W: 30, C: decor.DidentRight}),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		bar.Abort(true)
		return backoff.Permanent(err)
	}
	body := bar.ProxyReader(resp.Body)
	_, copyErr := io.Copy(f, body)
	body.Close()
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		bar.Abort(true)
		os.Remove(tmp)
		return err
	}
	bar.SetTotal(-1, true)

	mtype, err := mimetype.DetectFile(tmp)
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if !mtype.Is("application/gzip") {
		os.Remove(tmp)
		return backoff.Permanent(fmt.Errorf("%w: %s served %s", ErrNotGzip, url, mtype.String()))
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return backoff.Permanent(err)
	}
	return nil
}
