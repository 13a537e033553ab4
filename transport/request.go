/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package transport

import (
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/armon/go-metrics"
	"github.com/golang/glog"
	"github.com/sht2017/Pull-Microsoft-Store/failure"
)

const (
	DefaultTimeout = 120 * time.Second

	soapContentType = "application/soap+xml; charset=utf-8"
)

// Client issues requests with a fixed abort timer. The timer runs until the
// response headers arrive; after that the body may stream for as long as the
// caller's context allows.
type Client struct {
	HTTP      *http.Client
	Timeout   time.Duration
	UserAgent string
}

func New(httpClient *http.Client, timeout time.Duration, userAgent string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		HTTP:      httpClient,
		Timeout:   timeout,
		UserAgent: userAgent,
	}
}

// WithHTTPClient returns a copy sharing the timeout and user agent but sending
// through a different http.Client, e.g. one bound to a trust context.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	dup := *c
	dup.HTTP = httpClient
	return &dup
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// Do sends req. Any non-2xx status, transport failure or timeout is a
// NetworkError. The caller must close the returned body.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(c.Timeout, cancel)

	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	glog.V(1).Infof("[%s] %s", req.URL.String(), req.Method)
	resp, err := c.HTTP.Do(req.WithContext(reqCtx))
	fired := !timer.Stop()

	if err != nil {
		cancel()
		metrics.IncrCounter([]string{"transport", "error"}, 1)
		if fired && ctx.Err() == nil {
			return nil, failure.Wrap(err, failure.NetworkError, "request to %q aborted after %s", req.URL.String(), c.Timeout)
		}
		return nil, failure.Wrap(err, failure.NetworkError, "request to %q failed", req.URL.String())
	}

	if fired {
		resp.Body.Close()
		cancel()
		metrics.IncrCounter([]string{"transport", "error"}, 1)
		return nil, failure.New(failure.NetworkError, "request to %q aborted after %s", req.URL.String(), c.Timeout)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		metrics.IncrCounter([]string{"transport", "status", strconv.Itoa(resp.StatusCode)}, 1)
		return nil, failure.New(failure.NetworkError, "HTTP error: status: %d on %q", resp.StatusCode, req.URL.String())
	}

	resp.Body = &cancelOnClose{resp.Body, cancel}
	return resp, nil
}

func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, failure.Wrap(err, failure.NetworkError, "bad request URL %q", url)
	}
	return c.Do(ctx, req)
}

func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	return readAll(resp, url)
}

// PostXML posts a SOAP envelope and returns the raw response body.
func (c *Client) PostXML(ctx context.Context, url string, envelope string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(envelope))
	if err != nil {
		return nil, failure.Wrap(err, failure.NetworkError, "bad request URL %q", url)
	}
	req.Header.Set("Content-Type", soapContentType)

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return readAll(resp, url)
}

func readAll(resp *http.Response, url string) ([]byte, error) {
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.Wrap(err, failure.NetworkError, "reading response from %q", url)
	}
	return data, nil
}
