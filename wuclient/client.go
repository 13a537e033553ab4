/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

// Package wuclient speaks the FE3 update-distribution SOAP protocol: cookie
// negotiation, catalog synchronisation and per-update file location.
package wuclient

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/armon/go-metrics"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/sht2017/Pull-Microsoft-Store/failure"
	"github.com/sht2017/Pull-Microsoft-Store/rootprogram"
	"github.com/sht2017/Pull-Microsoft-Store/transport"
	"github.com/sht2017/Pull-Microsoft-Store/xmltree"
)

const (
	DefaultFE3Endpoint   = "https://fe3.delivery.mp.microsoft.com/ClientWebService/client.asmx"
	DefaultFE3CREndpoint = "https://fe3cr.delivery.mp.microsoft.com/ClientWebService/client.asmx"

	securedPath = "/secured"

	// Locations of exactly this length are placeholders the service hands out
	// alongside the real download URL.
	placeholderURLLength = 99
)

// CookieExpiration is the fixed expiry sent back with every cookie.
var CookieExpiration = time.Date(2045, time.March, 11, 2, 2, 48, 0, time.UTC)

type SessionCookie struct {
	EncryptedData string
	Expiration    time.Time
}

type UpdateIdentity struct {
	UpdateID       string
	RevisionNumber string
}

func (u UpdateIdentity) String() string {
	return fmt.Sprintf("%s rev %s", u.UpdateID, u.RevisionNumber)
}

type Endpoints struct {
	FE3   string
	FE3CR string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		FE3:   DefaultFE3Endpoint,
		FE3CR: DefaultFE3CREndpoint,
	}
}

// Client holds no per-run state. Every call names the trust context it must be
// sent under.
type Client struct {
	fetcher   *transport.Client
	endpoints Endpoints
	now       func() time.Time
	messageID func() string
}

// NewClient fills any blank endpoint with the public service address.
func NewClient(fetcher *transport.Client, endpoints Endpoints) *Client {
	defaults := DefaultEndpoints()
	if endpoints.FE3 == "" {
		endpoints.FE3 = defaults.FE3
	}
	if endpoints.FE3CR == "" {
		endpoints.FE3CR = defaults.FE3CR
	}
	return &Client{
		fetcher:   fetcher,
		endpoints: endpoints,
		now:       time.Now,
		messageID: func() string { return uuid.New().String() },
	}
}

func (c *Client) post(ctx context.Context, trust *rootprogram.TrustContext, action string, url string, envelope string) ([]byte, error) {
	defer metrics.MeasureSince([]string{"soap", action}, time.Now())
	metrics.IncrCounter([]string{"soap", action}, 1)

	glog.V(1).Infof("[%s] %s under %s", url, action, trust.Name())
	return c.fetcher.WithHTTPClient(trust.HTTPClient()).PostXML(ctx, url, envelope)
}

func parse(action string, body []byte, unescape bool) (*xmltree.Document, error) {
	var doc *xmltree.Document
	var err error
	if unescape {
		doc, err = xmltree.ParseString(html.UnescapeString(string(body)))
	} else {
		doc, err = xmltree.ParseBytes(body)
	}
	if err != nil {
		return nil, failure.Wrap(err, failure.XMLParseError, "XML parsing error in %s response", action)
	}
	return doc, nil
}

// GetCookie negotiates an anonymous session cookie. It must be sent under the
// ECC root.
func (c *Client) GetCookie(ctx context.Context, ecc *rootprogram.TrustContext) (SessionCookie, error) {
	envelope, err := render(getCookieEnvelope, cookieRequest{To: c.endpoints.FE3CR})
	if err != nil {
		return SessionCookie{}, err
	}

	body, err := c.post(ctx, ecc, ActionGetCookie, c.endpoints.FE3CR, envelope)
	if err != nil {
		return SessionCookie{}, err
	}

	doc, err := parse(ActionGetCookie, body, false)
	if err != nil {
		return SessionCookie{}, err
	}

	nodes := doc.ElementsByName("EncryptedData")
	if len(nodes) == 0 {
		return SessionCookie{}, failure.New(failure.CookieMissingError, "Cannot find cookie in response")
	}
	data, ok := doc.Value(nodes[0])
	if !ok {
		return SessionCookie{}, failure.New(failure.CookieMissingError, "Cookie is empty")
	}

	return SessionCookie{
		EncryptedData: data,
		Expiration:    CookieExpiration,
	}, nil
}

// SyncUpdates asks for the update catalog of one app category. It must be sent
// under the primary root. The response embeds escaped XML fragments, so the
// body is entity-decoded as a whole before parsing.
func (c *Client) SyncUpdates(ctx context.Context, primary *rootprogram.TrustContext, cookie SessionCookie, categoryID string) (*xmltree.Document, error) {
	created := c.now()
	envelope, err := render(syncUpdatesEnvelope, syncRequest{
		To:         c.endpoints.FE3,
		MessageID:  c.messageID(),
		Created:    created,
		Expires:    created.Add(timestampTTL),
		Cookie:     cookie,
		CategoryID: categoryID,
		Installed:  installedNonLeafUpdateIDs,
		Cached:     otherCachedUpdateIDs,
	})
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, primary, ActionSyncUpdates, c.endpoints.FE3, envelope)
	if err != nil {
		return nil, err
	}

	return parse(ActionSyncUpdates, body, true)
}

// ResolveFileURL asks for the download locations of one update. ok is false
// when the service returned no usable location; that is not an error.
func (c *Client) ResolveFileURL(ctx context.Context, ecc *rootprogram.TrustContext, id UpdateIdentity) (string, bool, error) {
	url := c.endpoints.FE3CR + securedPath
	envelope, err := render(extendedUpdateInfoEnvelope, extendedInfoRequest{To: url, Identity: id})
	if err != nil {
		return "", false, err
	}

	body, err := c.post(ctx, ecc, ActionGetExtendedUpdateInfo2, url, envelope)
	if err != nil {
		return "", false, err
	}

	doc, err := parse(ActionGetExtendedUpdateInfo2, body, false)
	if err != nil {
		return "", false, err
	}

	location, ok := SelectLocation(doc)
	return location, ok, nil
}

// SelectLocation returns the first FileLocation Url, in document order, that
// is non-empty and not a placeholder.
func SelectLocation(doc *xmltree.Document) (string, bool) {
	for _, loc := range doc.ElementsByName("FileLocation") {
		urlNode := doc.FirstDescendant(loc, "Url")
		if urlNode == xmltree.None {
			continue
		}
		value, ok := doc.Value(urlNode)
		if ok && len(value) != placeholderURLLength {
			return value, true
		}
	}
	return "", false
}
