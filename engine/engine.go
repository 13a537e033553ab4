/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package engine

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/armon/go-metrics"
	"github.com/golang/glog"
	"github.com/sht2017/Pull-Microsoft-Store/config"
	"github.com/sht2017/Pull-Microsoft-Store/downloader"
	"github.com/sht2017/Pull-Microsoft-Store/rootprogram"
	"github.com/sht2017/Pull-Microsoft-Store/storage"
	"github.com/sht2017/Pull-Microsoft-Store/storefront"
	"github.com/sht2017/Pull-Microsoft-Store/telemetry"
	"github.com/sht2017/Pull-Microsoft-Store/transport"
	"github.com/sht2017/Pull-Microsoft-Store/wuclient"
	"github.com/vbauerster/mpb/v5"
)

func PrepareTelemetry(utilName string, conf *config.MSConfig) (*telemetry.MetricsDumper, error) {
	infoDumpPeriod := *conf.StatsRefreshPeriod

	glog.Infof("%s is starting. Statistics will emit every: %s",
		utilName, infoDumpPeriod)

	metricsSink := metrics.NewInmemSink(infoDumpPeriod, 5*infoDumpPeriod)
	dumper := telemetry.NewMetricsDumper(metricsSink, infoDumpPeriod)
	_, err := metrics.NewGlobal(metrics.DefaultConfig(utilName), metricsSink)
	if err != nil {
		dumper.Stop()
		return nil, err
	}
	return dumper, nil
}

// NewDisplay returns the progress container. With nobars set the bars still
// run but draw nowhere.
func NewDisplay(ctx context.Context, conf *config.MSConfig) *mpb.Progress {
	if *conf.NoBars {
		return mpb.NewWithContext(ctx,
			mpb.WithOutput(ioutil.Discard),
		)
	}
	return mpb.NewWithContext(ctx,
		mpb.WithRefreshRate(*conf.OutputRefreshPeriod),
	)
}

func GetConfiguredStorage(conf *config.MSConfig) (*storage.LocalDiskBackend, error) {
	return storage.NewLocalDiskBackend(0644, *conf.OutputPath)
}

// LoadTrust fetches both roots. They are loaded in order, primary first.
func LoadTrust(ctx context.Context, fetcher *transport.Client, conf *config.MSConfig) (*rootprogram.TrustContext, *rootprogram.TrustContext, error) {
	defer metrics.MeasureSince([]string{"stage", "trust"}, time.Now())

	roots := rootprogram.NewRoots(ctx, fetcher)
	primary, err := roots.Load(rootprogram.PrimaryRoot, *conf.RootCertURL)
	if err != nil {
		return nil, nil, err
	}
	ecc, err := roots.Load(rootprogram.EccRoot, *conf.EccRootCertURL)
	if err != nil {
		return nil, nil, err
	}

	for _, tc := range []*rootprogram.TrustContext{primary, ecc} {
		glog.Infof("[%s] Trusting root from %s, valid until %s", tc.Name(), tc.Source(), tc.NotAfter())
	}
	return primary, ecc, nil
}

// NewDependencies wires every stage from the configuration: trust roots first,
// then the output directory, then the clients.
func NewDependencies(ctx context.Context, conf *config.MSConfig, display *mpb.Progress) (Dependencies, error) {
	fetcher := transport.New(nil, *conf.Timeout, *conf.UserAgent)

	primary, ecc, err := LoadTrust(ctx, fetcher, conf)
	if err != nil {
		return Dependencies{}, err
	}

	backend, err := GetConfiguredStorage(conf)
	if err != nil {
		return Dependencies{}, err
	}

	return Dependencies{
		Catalog: storefront.NewResolver(fetcher, *conf.StoreAPI),
		Updates: wuclient.NewClient(fetcher, wuclient.Endpoints{
			FE3:   *conf.FE3Endpoint,
			FE3CR: *conf.FE3CREndpoint,
		}),
		Primary:        primary,
		ECC:            ecc,
		Downloader:     downloader.New(fetcher, backend, display, LoggingAuditor{}),
		Display:        display,
		MaxConcurrency: *conf.MaxConcurrency,
	}, nil
}
