/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang/glog"
	"github.com/sht2017/Pull-Microsoft-Store/failure"
	"github.com/sht2017/Pull-Microsoft-Store/transport"
)

const (
	DefaultStoreAPI = "https://storeedgefd.dsx.mp.microsoft.com/v9.0"

	kMarket       = "US"
	kLocale       = "en-us"
	kDeviceFamily = "Windows.Desktop"
)

// ProductDescriptor is what the catalog tells us about a product: enough to
// scope an update sync and to recognise the product's files.
type ProductDescriptor struct {
	ProductID         string
	SkuID             string
	CategoryID        string
	PackageFamilyName string
}

// PackagePrefix is the package family name without its publisher id suffix.
func (p ProductDescriptor) PackagePrefix() string {
	return PackagePrefix(p.PackageFamilyName)
}

func (p ProductDescriptor) String() string {
	return fmt.Sprintf("[%s] sku=%s category=%s family=%s", p.ProductID, p.SkuID, p.CategoryID, p.PackageFamilyName)
}

// PackagePrefix drops the last underscore-delimited segment. A name without
// an underscore has no prefix.
func PackagePrefix(packageFamilyName string) string {
	parts := strings.Split(packageFamilyName, "_")
	return strings.Join(parts[:len(parts)-1], "_")
}

type fulfillmentData struct {
	WuCategoryId      string `json:"WuCategoryId"`
	PackageFamilyName string `json:"PackageFamilyName"`
}

type sku struct {
	SkuId           string          `json:"SkuId"`
	FulfillmentData json.RawMessage `json:"FulfillmentData"`
}

type productResponse struct {
	Payload *struct {
		Skus []sku `json:"Skus"`
	} `json:"Payload"`
}

// decodeFulfillment accepts the descriptor either as an object or as a string
// holding the object's JSON. A null or absent descriptor yields nil.
func decodeFulfillment(raw json.RawMessage) (*fulfillmentData, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, err
		}
		if strings.TrimSpace(encoded) == "" {
			return nil, nil
		}
		raw = json.RawMessage(encoded)
	}

	var fd fulfillmentData
	if err := json.Unmarshal(raw, &fd); err != nil {
		return nil, err
	}
	return &fd, nil
}

type Resolver struct {
	client *transport.Client
	api    string
}

func NewResolver(client *transport.Client, api string) *Resolver {
	if api == "" {
		api = DefaultStoreAPI
	}
	return &Resolver{
		client: client,
		api:    strings.TrimSuffix(api, "/"),
	}
}

func (r *Resolver) productURL(productID string) string {
	return fmt.Sprintf("%s/products/%s?market=%s&locale=%s&deviceFamily=%s",
		r.api, url.PathEscape(productID), kMarket, kLocale, kDeviceFamily)
}

func (r *Resolver) ResolveProduct(ctx context.Context, productID string) (ProductDescriptor, error) {
	desc := ProductDescriptor{ProductID: productID}

	data, err := r.client.GetBytes(ctx, r.productURL(productID))
	if err != nil {
		glog.Infof("Product %s not found", productID)
		return desc, failure.Wrap(err, failure.ProductNotFoundError, "Product %s not found", productID)
	}

	var resp productResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		glog.Infof("Product %s not found", productID)
		return desc, failure.Wrap(err, failure.ProductNotFoundError, "Product %s not found", productID)
	}
	if resp.Payload == nil {
		glog.Infof("Product %s not found", productID)
		return desc, failure.New(failure.ProductNotFoundError, "Product %s not found", productID)
	}

	if len(resp.Payload.Skus) == 0 {
		glog.Infof("No SKU found for product %s", productID)
		return desc, failure.New(failure.SkuNotFoundError, "No SKU found for product %s", productID)
	}
	first := resp.Payload.Skus[0]
	desc.SkuID = first.SkuId

	fd, err := decodeFulfillment(first.FulfillmentData)
	if err != nil {
		return desc, failure.Wrap(err, failure.FulfillmentMissingError, "Cannot decode fulfillment data for product %s", productID)
	}
	if fd == nil || fd.WuCategoryId == "" || fd.PackageFamilyName == "" {
		glog.Infof("Cannot find fulfillment data, consider this a Win32 app")
		return desc, failure.New(failure.FulfillmentMissingError, "Cannot find fulfillment data, consider this a Win32 app")
	}

	desc.CategoryID = fd.WuCategoryId
	desc.PackageFamilyName = fd.PackageFamilyName
	glog.V(1).Infof("Resolved %s", desc)
	return desc, nil
}
