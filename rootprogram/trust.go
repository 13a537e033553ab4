/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package rootprogram

import (
	"context"
	"crypto/tls"
	stdx509 "crypto/x509"
	"encoding/pem"
	"net/http"
	"time"

	"github.com/bluele/gcache"
	"github.com/golang/glog"
	"github.com/google/certificate-transparency-go/x509"
	"github.com/sht2017/Pull-Microsoft-Store/failure"
	"github.com/sht2017/Pull-Microsoft-Store/transport"
)

const (
	MicrosoftRootURL    = "https://www.microsoft.com/pki/certs/MicRooCerAut2011_2011_03_22.crt"
	MicrosoftEccRootURL = "https://www.microsoft.com/pkiops/certs/Microsoft%20ECC%20Product%20Root%20Certificate%20Authority%202018.crt"

	PrimaryRoot = "Microsoft Root"
	EccRoot     = "Microsoft ECC Root"
)

// TrustContext is a TLS configuration that trusts exactly one root
// certificate. It is immutable once built and safe for concurrent use.
type TrustContext struct {
	name      string
	source    string
	notAfter  time.Time
	tlsConfig *tls.Config
	transport *http.Transport
}

func (tc *TrustContext) Name() string {
	return tc.name
}

func (tc *TrustContext) Source() string {
	return tc.source
}

// NotAfter is the root's expiry, or the zero time when it could not be read.
func (tc *TrustContext) NotAfter() time.Time {
	return tc.notAfter
}

// HTTPClient returns a client whose connections only trust this root.
// Clients share one transport, so connections are pooled per trust context.
func (tc *TrustContext) HTTPClient() *http.Client {
	return &http.Client{Transport: tc.transport}
}

// EncodePEM frames DER bytes as a CERTIFICATE block, base64 wrapped at 64
// characters per line.
func EncodePEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: der,
	})
}

func NewTrustContext(name string, source string, der []byte) (*TrustContext, error) {
	tc := &TrustContext{
		name:   name,
		source: source,
	}

	cert, err := x509.ParseCertificate(der)
	if _, ok := err.(x509.NonFatalErrors); !ok && err != nil {
		glog.Warningf("[%s] Could not inspect certificate from %s: %s", name, source, err)
	} else if cert != nil {
		tc.notAfter = cert.NotAfter
		if !cert.IsCA {
			glog.Warningf("[%s] Certificate %q is not a CA", name, cert.Subject.CommonName)
		}
		if cert.NotAfter.Before(time.Now()) {
			glog.Warningf("[%s] Certificate %q expired at %s", name, cert.Subject.CommonName, cert.NotAfter)
		}
		glog.V(1).Infof("[%s] Subject=%q NotAfter=%s", name, cert.Subject.CommonName, cert.NotAfter)
	}

	pool := stdx509.NewCertPool()
	if !pool.AppendCertsFromPEM(EncodePEM(der)) {
		return nil, failure.New(failure.NetworkError, "%s from %s is not a certificate", name, source)
	}

	tc.tlsConfig = &tls.Config{RootCAs: pool}
	tc.transport = &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tc.tlsConfig,
	}
	return tc, nil
}

// LoadTrustContext fetches a DER certificate from url and builds a trust
// context around it.
func LoadTrustContext(ctx context.Context, fetcher *transport.Client, name string, url string) (*TrustContext, error) {
	glog.Infof("Fetch necessary certificates: %s", name)
	der, err := fetcher.GetBytes(ctx, url)
	if err != nil {
		return nil, err
	}

	tc, err := NewTrustContext(name, url, der)
	if err != nil {
		return nil, err
	}
	glog.Infof("Fetched necessary certificates: %s", name)
	return tc, nil
}

type rootSource struct {
	Name string
	URL  string
}

// Roots builds each trust context at most once per run, keyed by source.
type Roots struct {
	cache gcache.Cache
}

func NewRoots(ctx context.Context, fetcher *transport.Client) *Roots {
	return &Roots{
		cache: gcache.New(8).LRU().LoaderFunc(func(key interface{}) (interface{}, error) {
			src := key.(rootSource)
			return LoadTrustContext(ctx, fetcher, src.Name, src.URL)
		}).Build(),
	}
}

func (r *Roots) Load(name string, url string) (*TrustContext, error) {
	v, err := r.cache.Get(rootSource{Name: name, URL: url})
	if err != nil {
		return nil, err
	}
	return v.(*TrustContext), nil
}
