/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package engine

import (
	"net/url"
	"strings"

	"github.com/golang/glog"
	"github.com/sht2017/Pull-Microsoft-Store/downloader"
)

// LoggingAuditor reports failed downloads with the addresses they resolved to.
type LoggingAuditor struct{}

func (LoggingAuditor) FailedDownload(filename string, fileURL *url.URL, dlTracer *downloader.DownloadTracer, err error) {
	glog.Warningf("[%s] Download from host %s failed: %s (DNS answers: [%s], DNS errors: [%s])",
		filename, fileURL.Host, err,
		strings.Join(dlTracer.DNSResults(), ", "),
		strings.Join(dlTracer.Errors(), ", "))
}
