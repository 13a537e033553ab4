/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

// Package downloader streams resolved package URLs into the output storage.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/armon/go-metrics"
	"github.com/golang/glog"
	"github.com/sht2017/Pull-Microsoft-Store/failure"
	"github.com/sht2017/Pull-Microsoft-Store/storage"
	"github.com/sht2017/Pull-Microsoft-Store/transport"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

type Downloader struct {
	fetcher *transport.Client
	backend storage.StorageBackend
	display *mpb.Progress
	auditor DownloadAuditor
}

// New returns a Downloader. A nil auditor discards failure reports.
func New(fetcher *transport.Client, backend storage.StorageBackend, display *mpb.Progress, auditor DownloadAuditor) *Downloader {
	if auditor == nil {
		auditor = nopAuditor{}
	}
	return &Downloader{
		fetcher: fetcher,
		backend: backend,
		display: display,
		auditor: auditor,
	}
}

func tmpName(filename string) string {
	return fmt.Sprintf("%s.tmp", filename)
}

// Download fetches fileURL into filename, replacing any existing file. The
// body goes to a temporary sibling first, which is removed on any failure.
func (d *Downloader) Download(ctx context.Context, fileURL string, filename string) (int64, error) {
	defer metrics.MeasureSince([]string{"download"}, time.Now())

	parsed, err := url.Parse(fileURL)
	if err != nil {
		return 0, failure.Wrap(err, failure.NetworkError, "bad download URL for %s", filename)
	}
	if err := storage.CheckName(filename); err != nil {
		return 0, failure.Wrap(err, failure.NetworkError, "cannot store download")
	}

	dlTracer := NewDownloadTracer()
	auditCtx := dlTracer.Configure(ctx)

	tmpPath := tmpName(filename)
	defer func() {
		removeErr := d.backend.Remove(tmpPath)
		if removeErr != nil && removeErr != storage.ErrNotExist {
			glog.Warningf("[%s] Failed to remove tmp file %s: %s", filename, tmpPath, removeErr)
		}
	}()

	glog.Infof("Pull %s from %s", filename, fileURL)
	size, err := d.fetch(auditCtx, fileURL, filename, tmpPath)
	if err != nil {
		d.auditor.FailedDownload(filename, parsed, dlTracer, err)
		glog.Warningf("[%s] Failed to download from %s: %s", filename, fileURL, err)
		return 0, err
	}

	if err := d.backend.Rename(tmpPath, filename); err != nil {
		glog.Errorf("[%s] Couldn't rename %s to %s: %s", filename, tmpPath, filename, err)
		return 0, failure.Wrap(err, failure.NetworkError, "storing %s", filename)
	}

	metrics.IncrCounter([]string{"download", "files"}, 1)
	metrics.IncrCounter([]string{"download", "bytes"}, float32(size))
	glog.Infof("Pulled %s (%d bytes)", filename, size)
	return size, nil
}

func (d *Downloader) fetch(ctx context.Context, fileURL string, filename string, tmpPath string) (int64, error) {
	resp, err := d.fetcher.Get(ctx, fileURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	outFile, err := d.backend.Writer(tmpPath)
	if err != nil {
		return 0, failure.Wrap(err, failure.NetworkError, "opening %s", d.backend.Path(tmpPath))
	}

	progBar := d.display.AddBar(resp.ContentLength,
		mpb.PrependDecorators(
			decor.Name(filename),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 16),
			decor.CountersKibiByte(" %6.1f / %6.1f"),
		),
		mpb.BarRemoveOnComplete(),
	)
	reader := progBar.ProxyReader(resp.Body)

	totalBytes, err := io.Copy(outFile, reader)
	closeErr := outFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		progBar.Abort(true)
		return 0, failure.Wrap(err, failure.NetworkError, "transfer of %s interrupted", filename)
	}

	// Sometimes ContentLength is crazy far off.
	progBar.SetTotal(totalBytes, true)
	return totalBytes, nil
}

// Path is where filename is stored.
func (d *Downloader) Path(filename string) string {
	return d.backend.Path(filename)
}
