/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package downloader

import (
	"context"
	"net/http/httptrace"
	"sync"

	"github.com/golang/glog"
)

// DownloadTracer remembers the DNS answers seen while fetching, so a failed
// download can be reported with where it actually went.
type DownloadTracer struct {
	mutex   sync.Mutex
	DNSDone []httptrace.DNSDoneInfo
	Reused  bool
}

func NewDownloadTracer() *DownloadTracer {
	return &DownloadTracer{
		DNSDone: []httptrace.DNSDoneInfo{},
	}
}

func (da *DownloadTracer) dnsDone(ddi httptrace.DNSDoneInfo) {
	glog.V(1).Infof("DNS result: %+v", ddi)
	da.mutex.Lock()
	defer da.mutex.Unlock()
	da.DNSDone = append(da.DNSDone, ddi)
}

func (da *DownloadTracer) gotConn(info httptrace.GotConnInfo) {
	da.mutex.Lock()
	defer da.mutex.Unlock()
	da.Reused = info.Reused
}

func (da *DownloadTracer) Configure(ctx context.Context) context.Context {
	traceObj := &httptrace.ClientTrace{
		DNSDone: da.dnsDone,
		GotConn: da.gotConn,
	}

	return httptrace.WithClientTrace(ctx, traceObj)
}

func (da *DownloadTracer) DNSResults() []string {
	da.mutex.Lock()
	defer da.mutex.Unlock()
	results := []string{}
	for _, ddi := range da.DNSDone {
		for _, addr := range ddi.Addrs {
			results = append(results, addr.String())
		}
	}
	return results
}

func (da *DownloadTracer) Errors() []string {
	da.mutex.Lock()
	defer da.mutex.Unlock()
	results := []string{}
	for _, ddi := range da.DNSDone {
		if ddi.Err != nil {
			results = append(results, ddi.Err.Error())
		}
	}
	return results
}
