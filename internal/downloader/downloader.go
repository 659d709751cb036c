package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/gumroad_downloader/internal/catalog"
	"github.com/italolelis/gumroad_downloader/internal/downloader/progress"
	"github.com/italolelis/gumroad_downloader/internal/logctx"
	"github.com/italolelis/gumroad_downloader/internal/session"
	"github.com/italolelis/gumroad_downloader/internal/telemetry"
	"github.com/italolelis/gumroad_downloader/internal/transfer"
	"golang.org/x/sync/errgroup"
)

const (
	dirPerm   = 0755
	chunkSize = 4096

	progressInterval = 10 * 1024 * 1024 // 10MB
)

// ErrIdleTimeout aborts a transfer whose body stopped flowing.
var ErrIdleTimeout = errors.New("download stalled")

type Downloader struct {
	pool        *session.Pool
	maxParallel int
	idleTimeout time.Duration
	tel         *telemetry.Telemetry
}

// NewDownloader returns a Downloader running up to maxParallel tasks at once.
// A zero idleTimeout disables the stall watchdog.
func NewDownloader(pool *session.Pool, maxParallel int, idleTimeout time.Duration, tel *telemetry.Telemetry) *Downloader {
	return &Downloader{
		pool:        pool,
		maxParallel: max(maxParallel, 1),
		idleTimeout: idleTimeout,
		tel:         tel,
	}
}

// BuildTasks lists one task per content item of every product of creators, laid out as
// root/creator/product/file. Items of a product resolving to the same path are merged: the later item wins
// and keeps the position of the first.
func BuildTasks(
	ctx context.Context,
	store catalog.ReadRepository,
	root, baseURL string,
	creators []catalog.Creator,
) ([]transfer.DownloadTask, error) {
	var tasks []transfer.DownloadTask

	index := make(map[string]int)

	for _, c := range creators {
		details, err := store.GetProductDetails(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read products of creator %s: %w", c.ID, err)
		}

		name := c.Name
		if name == "" {
			name = c.ID
		}

		creatorDir := filepath.Join(root, catalog.SanitizeName(name))

		for _, d := range details {
			productDir := filepath.Join(creatorDir, d.SanitizedName)

			for _, item := range d.ContentItems {
				fileName := catalog.SanitizeName(item.FullName())
				task := transfer.DownloadTask{
					DestinationPath: filepath.Join(productDir, fileName),
					SourceURL:       sourceURL(baseURL, item.DownloadPath),
					DisplayName:     d.SanitizedName + "/" + fileName,
				}

				if i, ok := index[task.DestinationPath]; ok {
					tasks[i] = task

					continue
				}

				index[task.DestinationPath] = len(tasks)
				tasks = append(tasks, task)
			}
		}
	}

	return tasks, nil
}

func sourceURL(baseURL, downloadPath string) string {
	if strings.HasPrefix(downloadPath, "http://") || strings.HasPrefix(downloadPath, "https://") {
		return downloadPath
	}

	return strings.TrimSuffix(baseURL, "/") + downloadPath
}

// Run downloads tasks and returns the tally. A failed task never stops the others.
// Once ctx is done no further task is started.
func (d *Downloader) Run(ctx context.Context, tasks []transfer.DownloadTask) transfer.Report {
	logger := logctx.LoggerFromContext(ctx)

	logger.Info("starting downloads", "tasks", len(tasks), "max_parallel", d.maxParallel)

	var (
		collector transfer.Collector
		g         errgroup.Group
	)

	g.SetLimit(d.maxParallel)

	for i, task := range tasks {
		if ctx.Err() != nil {
			logger.Warn("downloads interrupted", "pending", len(tasks)-i, "err", ctx.Err())

			break
		}

		g.Go(func() error {
			collector.Add(d.Download(ctx, task))

			return nil
		})
	}

	_ = g.Wait()

	report := collector.Report()

	logger.Info("downloads finished",
		"done", report.Done,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"written", humanize.Bytes(uint64(report.Bytes)))

	return report
}

// Download fetches one task into its destination unless a file of the announced size is already there.
func (d *Downloader) Download(ctx context.Context, task transfer.DownloadTask) transfer.Result {
	start := time.Now()
	ctx, logger := logctx.With(ctx, "path", task.DestinationPath)

	res := transfer.Result{Name: task.DisplayName}

	err := d.pool.Do(ctx, func(s *session.Session) error {
		return d.tel.InstrumentDownload(ctx, func(ctx context.Context) error {
			var err error

			res.Status, res.Bytes, err = d.fetch(ctx, s, task)

			return err
		})
	})

	res.Duration = time.Since(start)

	if err != nil {
		res.Status = transfer.StatusFailed
		res.Kind = transfer.Classify(err)
		res.Err = err

		logger.Error("failed to download file", "name", task.DisplayName, "kind", res.Kind, "err", err)
	}

	d.tel.RecordDownload(string(res.Status), res.Duration)
	d.tel.RecordBytes(res.Bytes)

	return res
}

func (d *Downloader) fetch(ctx context.Context, s *session.Session, task transfer.DownloadTask) (transfer.Status, int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stream, err := s.Stream(ctx, task.SourceURL)
	if err != nil {
		return transfer.StatusFailed, 0, err
	}
	defer stream.Body.Close()

	dir := filepath.Dir(task.DestinationPath)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return transfer.StatusFailed, 0, &transfer.FilesystemError{Path: dir, Reason: "failed to create directory", Err: err}
	}

	if info, err := os.Stat(task.DestinationPath); err == nil && info.Mode().IsRegular() && info.Size() == stream.ContentLength {
		logger.Info("file already downloaded", "name", task.DisplayName, "size", humanize.Bytes(uint64(info.Size())))

		return transfer.StatusSkipped, 0, nil
	}

	logger.Info("downloading file", "name", task.DisplayName, "size", humanize.Bytes(uint64(stream.ContentLength)))

	out, err := os.Create(task.DestinationPath)
	if err != nil {
		return transfer.StatusFailed, 0, &transfer.FilesystemError{Path: task.DestinationPath, Reason: "failed to create file", Err: err}
	}

	written, err := d.writeFile(ctx, cancel, out, stream)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = &transfer.FilesystemError{Path: task.DestinationPath, Reason: "failed to close file", Err: cerr}
	}

	if err != nil {
		return transfer.StatusFailed, written, err
	}

	logger.Info("downloaded and saved file", "name", task.DisplayName, "written", humanize.Bytes(uint64(written)))

	return transfer.StatusDone, written, nil
}

// writeFile copies the body in fixed chunks. Every chunk re-arms the idle watchdog, which cancels the
// request through cancel when the body stalls.
func (d *Downloader) writeFile(ctx context.Context, cancel context.CancelCauseFunc, out *os.File, stream *session.Stream) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	var watchdog *time.Timer
	if d.idleTimeout > 0 {
		watchdog = time.AfterFunc(d.idleTimeout, func() { cancel(ErrIdleTimeout) })
		defer watchdog.Stop()
	}

	pr := progress.NewReader(stream.Body, stream.ContentLength, progressInterval, func(read, total int64) {
		if total > 0 {
			logger.Debug("download progress",
				"downloaded", humanize.Bytes(uint64(read)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(read)*100/float64(total), 2))
		} else {
			logger.Debug("download progress", "downloaded", humanize.Bytes(uint64(read)))
		}
	})

	buf := make([]byte, chunkSize)

	var written int64

	for {
		n, rerr := pr.Read(buf)
		if n > 0 {
			if watchdog != nil {
				watchdog.Reset(d.idleTimeout)
			}

			if _, err := out.Write(buf[:n]); err != nil {
				return written, &transfer.FilesystemError{Path: out.Name(), Reason: "failed to write file", Err: err}
			}

			written += int64(n)
		}

		if rerr == io.EOF {
			return written, nil
		}

		if rerr != nil {
			if cause := context.Cause(ctx); errors.Is(cause, ErrIdleTimeout) {
				rerr = cause
			}

			return written, &transfer.NetworkError{Operation: "read_body", APIMessage: rerr.Error(), Err: rerr}
		}
	}
}
