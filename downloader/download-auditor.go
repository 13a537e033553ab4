/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package downloader

import (
	"net/url"
)

type DownloadAuditor interface {
	FailedDownload(filename string, fileURL *url.URL, dlTracer *DownloadTracer, err error)
}

type nopAuditor struct{}

func (nopAuditor) FailedDownload(string, *url.URL, *DownloadTracer, error) {}
