package storefront

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sht2017/Pull-Microsoft-Store/failure"
	"github.com/sht2017/Pull-Microsoft-Store/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogServer(t *testing.T, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/9WZDNCRFJ3TJ", r.URL.Path)
		assert.Equal(t, "market=US&locale=en-us&deviceFamily=Windows.Desktop", r.URL.RawQuery)
		fmt.Fprint(w, body)
	}))
}

func resolve(t *testing.T, body string) (ProductDescriptor, error) {
	ts := catalogServer(t, body)
	defer ts.Close()
	r := NewResolver(transport.New(ts.Client(), time.Second, ""), ts.URL+"/")
	return r.ResolveProduct(context.Background(), "9WZDNCRFJ3TJ")
}

func Test_FulfillmentAsObject(t *testing.T) {
	desc, err := resolve(t, `{"Payload":{"Skus":[{"SkuId":"0010","FulfillmentData":
		{"WuCategoryId":"c1-guid","PackageFamilyName":"Publisher.App_8wekyb3d8bbwe"}}]}}`)
	require.NoError(t, err)

	assert.Equal(t, "0010", desc.SkuID)
	assert.Equal(t, "c1-guid", desc.CategoryID)
	assert.Equal(t, "Publisher.App_8wekyb3d8bbwe", desc.PackageFamilyName)
	assert.Equal(t, "Publisher.App", desc.PackagePrefix())
}

func Test_FulfillmentAsString(t *testing.T) {
	desc, err := resolve(t, `{"Payload":{"Skus":[{"FulfillmentData":
		"{\"WuCategoryId\":\"c2-guid\",\"PackageFamilyName\":\"A.B_x\"}"}]}}`)
	require.NoError(t, err)

	assert.Equal(t, "c2-guid", desc.CategoryID)
	assert.Equal(t, "A.B", desc.PackagePrefix())
}

func Test_ResolveFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind failure.Kind
	}{
		{"no payload", `{}`, failure.ProductNotFoundError},
		{"null payload", `{"Payload":null}`, failure.ProductNotFoundError},
		{"not json", `<html/>`, failure.ProductNotFoundError},
		{"no skus", `{"Payload":{"Skus":[]}}`, failure.SkuNotFoundError},
		{"no fulfillment", `{"Payload":{"Skus":[{"SkuId":"1"}]}}`, failure.FulfillmentMissingError},
		{"null fulfillment", `{"Payload":{"Skus":[{"FulfillmentData":null}]}}`, failure.FulfillmentMissingError},
		{"missing category", `{"Payload":{"Skus":[{"FulfillmentData":{"PackageFamilyName":"A_b"}}]}}`, failure.FulfillmentMissingError},
		{"missing family", `{"Payload":{"Skus":[{"FulfillmentData":{"WuCategoryId":"c"}}]}}`, failure.FulfillmentMissingError},
		{"string missing family", `{"Payload":{"Skus":[{"FulfillmentData":"{\"WuCategoryId\":\"c\"}"}]}}`, failure.FulfillmentMissingError},
		{"empty string", `{"Payload":{"Skus":[{"FulfillmentData":""}]}}`, failure.FulfillmentMissingError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolve(t, tt.body)
			require.Error(t, err)
			assert.Equal(t, tt.kind, failure.KindOf(err))
		})
	}
}

func Test_RequestErrorIsProductNotFound(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	r := NewResolver(transport.New(ts.Client(), time.Second, ""), ts.URL)
	_, err := r.ResolveProduct(context.Background(), "missing")
	assert.Equal(t, failure.ProductNotFoundError, failure.KindOf(err))
}

func Test_PackagePrefix(t *testing.T) {
	assert.Equal(t, "Publisher.App", PackagePrefix("Publisher.App_8wekyb3d8bbwe"))
	assert.Equal(t, "A_B", PackagePrefix("A_B_pub"))
	assert.Equal(t, "", PackagePrefix("NoUnderscore"))
	assert.Equal(t, "", PackagePrefix(""))
	assert.Equal(t, "Trailing", PackagePrefix("Trailing_"))

	// Idempotent for a given input.
	assert.Equal(t, PackagePrefix("Publisher.App_8wekyb3d8bbwe"), PackagePrefix("Publisher.App_8wekyb3d8bbwe"))
}
