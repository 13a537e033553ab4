/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package engine

import (
	"context"
	"time"

	"github.com/armon/go-metrics"
	"github.com/golang/glog"
	"github.com/sht2017/Pull-Microsoft-Store/correlate"
	"github.com/sht2017/Pull-Microsoft-Store/downloader"
	"github.com/sht2017/Pull-Microsoft-Store/failure"
	"github.com/sht2017/Pull-Microsoft-Store/rootprogram"
	"github.com/sht2017/Pull-Microsoft-Store/storefront"
	"github.com/sht2017/Pull-Microsoft-Store/wuclient"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
	"golang.org/x/sync/errgroup"
)

// Dependencies are everything Extract talks to. The two trust contexts are
// never swapped: cookies and file URLs go under ECC, the catalog sync under
// Primary.
type Dependencies struct {
	Catalog    *storefront.Resolver
	Updates    *wuclient.Client
	Primary    *rootprogram.TrustContext
	ECC        *rootprogram.TrustContext
	Downloader *downloader.Downloader
	Display    *mpb.Progress
	// MaxConcurrency bounds the per-file tasks. Zero means one goroutine per
	// file with no limit.
	MaxConcurrency int
	// OnWarning, when set, also receives each correlation warning.
	OnWarning func(failure.Warning)
}

type FileOutcome struct {
	Filename string                  `json:"filename"`
	Identity wuclient.UpdateIdentity `json:"identity"`
	URL      string                  `json:"url,omitempty"`
	Path     string                  `json:"path,omitempty"`
	Bytes    int64                   `json:"bytes"`
	Resolved bool                    `json:"resolved"`
}

type Report struct {
	Product  storefront.ProductDescriptor `json:"product"`
	Files    []FileOutcome                `json:"files"`
	Warnings []failure.Warning            `json:"warnings,omitempty"`
}

// Downloaded counts the files that made it to disk.
func (r *Report) Downloaded() int {
	n := 0
	for _, f := range r.Files {
		if f.Resolved {
			n++
		}
	}
	return n
}

type Engine struct {
	deps Dependencies
}

func New(deps Dependencies) *Engine {
	return &Engine{deps: deps}
}

// Extract resolves productID and downloads every package file that belongs to
// it. Any protocol or transport failure aborts the run; correlation problems
// are reported and skipped.
func (e *Engine) Extract(ctx context.Context, productID string) (*Report, error) {
	defer metrics.MeasureSince([]string{"stage", "extract"}, time.Now())

	product, err := e.resolveProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	result, err := e.sync(ctx, product)
	if err != nil {
		return nil, err
	}

	for _, w := range result.Warnings {
		glog.Warningf("Correlation: %s", w)
		if e.deps.OnWarning != nil {
			e.deps.OnWarning(w)
		}
	}
	if err := result.WarningsErr(); err != nil {
		glog.V(1).Info(err)
	}

	files, err := e.pull(ctx, result.Sorted())
	if err != nil {
		return nil, err
	}

	return &Report{
		Product:  product,
		Files:    files,
		Warnings: result.Warnings,
	}, nil
}

func (e *Engine) resolveProduct(ctx context.Context, productID string) (storefront.ProductDescriptor, error) {
	defer metrics.MeasureSince([]string{"stage", "product"}, time.Now())

	product, err := e.deps.Catalog.ResolveProduct(ctx, productID)
	if err != nil {
		glog.Errorf("Product %s: %s", productID, err)
		return product, err
	}
	glog.Infof("Resolved %s", product)
	return product, nil
}

func (e *Engine) sync(ctx context.Context, product storefront.ProductDescriptor) (*correlate.Result, error) {
	defer metrics.MeasureSince([]string{"stage", "sync"}, time.Now())

	glog.Infof("Fetch cookie")
	cookie, err := e.deps.Updates.GetCookie(ctx, e.deps.ECC)
	if err != nil {
		return nil, err
	}

	glog.Infof("Fetch updates for product %s", product.ProductID)
	doc, err := e.deps.Updates.SyncUpdates(ctx, e.deps.Primary, cookie, product.CategoryID)
	if err != nil {
		return nil, err
	}

	result := correlate.Correlate(doc, product.PackagePrefix())
	glog.Infof("Correlated %d file(s) and %d update(s) for prefix %q with %d warning(s)",
		len(result.Files), len(result.Updates), product.PackagePrefix(), len(result.Warnings))
	return result, nil
}

// pull runs one resolve-then-download task per update. A failed task does not
// cancel its siblings; the first failure is returned once all have finished.
func (e *Engine) pull(ctx context.Context, updates []correlate.UpdateEntry) ([]FileOutcome, error) {
	defer metrics.MeasureSince([]string{"stage", "pull"}, time.Now())

	outcomes := make([]FileOutcome, len(updates))
	progressBar := e.deps.Display.AddBar(int64(len(updates)),
		mpb.PrependDecorators(
			decor.Name("Pull files"),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
		),
		mpb.BarRemoveOnComplete(),
	)

	var group errgroup.Group
	if e.deps.MaxConcurrency > 0 {
		group.SetLimit(e.deps.MaxConcurrency)
	}

	for i, update := range updates {
		i, update := i, update
		group.Go(func() error {
			defer progressBar.Increment()
			outcome, err := e.pullOne(ctx, update)
			outcomes[i] = outcome
			return err
		})
	}

	err := group.Wait()
	if err != nil {
		progressBar.Abort(true)
		return nil, err
	}
	progressBar.SetTotal(int64(len(updates)), true)
	return outcomes, nil
}

func (e *Engine) pullOne(ctx context.Context, update correlate.UpdateEntry) (FileOutcome, error) {
	outcome := FileOutcome{
		Filename: update.Filename,
		Identity: update.Identity,
	}

	glog.V(1).Infof("Fetch URLs for %s (%s)", update.Filename, update.Identity)
	location, ok, err := e.deps.Updates.ResolveFileURL(ctx, e.deps.ECC, update.Identity)
	if err != nil {
		return outcome, err
	}
	if !ok {
		metrics.IncrCounter([]string{"locate", "unresolved"}, 1)
		glog.V(1).Infof("No usable location for %s, skipping", update.Filename)
		return outcome, nil
	}
	outcome.URL = location

	size, err := e.deps.Downloader.Download(ctx, location, update.Filename)
	if err != nil {
		return outcome, err
	}
	outcome.Path = e.deps.Downloader.Path(update.Filename)
	outcome.Bytes = size
	outcome.Resolved = true
	return outcome, nil
}
