package wuclient

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sht2017/Pull-Microsoft-Store/failure"
	"github.com/sht2017/Pull-Microsoft-Store/rootprogram"
	"github.com/sht2017/Pull-Microsoft-Store/transport"
	"github.com/sht2017/Pull-Microsoft-Store/xmltree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	path        string
	contentType string
	body        string
}

// fakeFE3 serves fixed bodies per path and records the last request.
type fakeFE3 struct {
	server    *httptest.Server
	responses map[string]string
	last      recorded
}

func newFakeFE3(t *testing.T, responses map[string]string) *fakeFE3 {
	f := &fakeFE3{responses: responses}
	f.server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := ioutil.ReadAll(r.Body)
		f.last = recorded{
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		}
		resp, ok := f.responses[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeFE3) client(t *testing.T) (*Client, *rootprogram.TrustContext) {
	trust, err := rootprogram.NewTrustContext("Test Root", f.server.URL, f.server.Certificate().Raw)
	require.NoError(t, err)

	c := NewClient(transport.New(nil, 5*time.Second, "pull-msstore-test"), Endpoints{
		FE3:   f.server.URL + "/fe3/client.asmx",
		FE3CR: f.server.URL + "/fe3cr/client.asmx",
	})
	c.now = func() time.Time {
		return time.Date(2024, time.May, 1, 10, 0, 0, 500000000, time.FixedZone("CEST", 2*60*60))
	}
	c.messageID = func() string { return "00000000-0000-0000-0000-000000000001" }
	return c, trust
}

const cookieResponse = `<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
  <s:Body>
    <GetCookieResponse xmlns="http://www.microsoft.com/SoftwareDistribution/Server/ClientWebService">
      <GetCookieResult>
        <Expiration>2045-03-11T02:02:48Z</Expiration>
        <EncryptedData>c2Vzc2lvbg==</EncryptedData>
      </GetCookieResult>
    </GetCookieResponse>
  </s:Body>
</s:Envelope>`

func Test_GetCookie(t *testing.T) {
	f := newFakeFE3(t, map[string]string{"/fe3cr/client.asmx": cookieResponse})
	c, ecc := f.client(t)

	cookie, err := c.GetCookie(context.Background(), ecc)
	require.NoError(t, err)

	assert.Equal(t, "c2Vzc2lvbg==", cookie.EncryptedData)
	assert.Equal(t, "2045-03-11T02:02:48Z", cookie.Expiration.Format(time.RFC3339))

	assert.Equal(t, "application/soap+xml; charset=utf-8", f.last.contentType)
	assert.Contains(t, f.last.body, "ClientWebService/GetCookie</a:Action>")
	assert.Contains(t, f.last.body, `<a:To mustUnderstand="1">`+f.server.URL+`/fe3cr/client.asmx</a:To>`)
	assert.Contains(t, f.last.body, `u:id="ClientMSA"`)
}

func Test_GetCookieMissing(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no element", `<Envelope><Body><GetCookieResponse/></Body></Envelope>`},
		{"empty element", `<Envelope><Body><EncryptedData></EncryptedData></Body></Envelope>`},
		{"self closing", `<Envelope><Body><EncryptedData/></Body></Envelope>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFE3(t, map[string]string{"/fe3cr/client.asmx": tt.body})
			c, ecc := f.client(t)

			_, err := c.GetCookie(context.Background(), ecc)
			require.Error(t, err)
			assert.Equal(t, failure.CookieMissingError, failure.KindOf(err))
		})
	}
}

func Test_GetCookieHTTPError(t *testing.T) {
	f := newFakeFE3(t, map[string]string{})
	c, ecc := f.client(t)

	_, err := c.GetCookie(context.Background(), ecc)
	require.Error(t, err)
	assert.Equal(t, failure.NetworkError, failure.KindOf(err))
	assert.Contains(t, err.Error(), "status: 404")
}

const syncResponse = `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
<s:Body><SyncUpdatesResponse><SyncUpdatesResult><NewUpdates>
<UpdateInfo><ID>7</ID><Xml>&lt;ExtendedProperties /&gt;&lt;Files&gt;&lt;File FileName="app.msixbundle" InstallerSpecificIdentifier="Publisher.App_1.0.0.0_neutral_~_8wekyb3d8bbwe" /&gt;&lt;/Files&gt;</Xml></UpdateInfo>
</NewUpdates></SyncUpdatesResult></SyncUpdatesResponse></s:Body>
</s:Envelope>`

func Test_SyncUpdates(t *testing.T) {
	f := newFakeFE3(t, map[string]string{"/fe3/client.asmx": syncResponse})
	c, primary := f.client(t)

	cookie := SessionCookie{EncryptedData: "c2Vzc2lvbg==", Expiration: CookieExpiration}
	doc, err := c.SyncUpdates(context.Background(), primary, cookie, "d3b4-category")
	require.NoError(t, err)

	files := doc.ElementsByName("Files")
	require.Len(t, files, 1)
	file := doc.FirstChildElement(files[0])
	name, ok := doc.Attr(file, "FileName")
	assert.True(t, ok)
	assert.Equal(t, "app.msixbundle", name)

	body := f.last.body
	assert.Equal(t, "/fe3/client.asmx", f.last.path)
	assert.Contains(t, body, "ClientWebService/SyncUpdates</a:Action>")
	assert.Contains(t, body, "<a:MessageID>urn:uuid:00000000-0000-0000-0000-000000000001</a:MessageID>")
	assert.Contains(t, body, `<a:To s:mustUnderstand="1">`+f.server.URL+`/fe3/client.asmx</a:To>`)
	assert.Contains(t, body, "<Created>2024-05-01T08:00:00.500Z</Created>")
	assert.Contains(t, body, "<Expires>2024-05-01T08:05:00.500Z</Expires>")
	assert.Contains(t, body, "<Expiration>2045-03-11T02:02:48Z</Expiration>")
	assert.Contains(t, body, "<EncryptedData>c2Vzc2lvbg==</EncryptedData>")
	assert.Contains(t, body, "<Id>d3b4-category</Id>")
}

func Test_SyncUpdatesMalformed(t *testing.T) {
	f := newFakeFE3(t, map[string]string{"/fe3/client.asmx": `<s:Envelope><s:Body><SyncUpdatesResponse>`})
	c, primary := f.client(t)

	_, err := c.SyncUpdates(context.Background(), primary, SessionCookie{EncryptedData: "x"}, "cat")
	require.Error(t, err)
	assert.Equal(t, failure.XMLParseError, failure.KindOf(err))
}

func Test_SyncUpdatesEscapesValues(t *testing.T) {
	f := newFakeFE3(t, map[string]string{"/fe3/client.asmx": syncResponse})
	c, primary := f.client(t)

	_, err := c.SyncUpdates(context.Background(), primary, SessionCookie{EncryptedData: "a<b"}, "c&d")
	require.NoError(t, err)
	assert.Contains(t, f.last.body, "<EncryptedData>a&lt;b</EncryptedData>")
	assert.Contains(t, f.last.body, "<Id>c&amp;d</Id>")
}

func Test_SyncEnvelopeBaseline(t *testing.T) {
	out, err := render(syncUpdatesEnvelope, syncRequest{
		To:        DefaultFE3Endpoint,
		MessageID: "id",
		Installed: installedNonLeafUpdateIDs,
		Cached:    otherCachedUpdateIDs,
	})
	require.NoError(t, err)

	assert.Contains(t, out, "            <InstalledNonLeafUpdateIDs>\n                <int>1</int>\n                <int>2</int>\n")
	assert.Contains(t, out, "                <int>164852253</int>\n            </InstalledNonLeafUpdateIDs>\n")
	assert.Contains(t, out, "            <OtherCachedUpdateIDs>\n                <int>10</int>\n")
	assert.Contains(t, out, "                <int>28880263</int>\n            </OtherCachedUpdateIDs>\n")
	assert.Equal(t, 76, strings.Count(out, "<int>"))

	_, err = xmltree.ParseString(out)
	assert.NoError(t, err)
}

func placeholder() string {
	u := "https://tlu.dl.delivery.mp.microsoft.com/filestreamingservice/files/"
	return u + strings.Repeat("p", placeholderURLLength-len(u))
}

func locations(urls ...string) string {
	var b strings.Builder
	b.WriteString(`<Envelope><Body><GetExtendedUpdateInfo2Response><GetExtendedUpdateInfo2Result><FileLocations>`)
	for _, u := range urls {
		b.WriteString("<FileLocation><FileDigest>AAAA</FileDigest><Url>" + u + "</Url></FileLocation>")
	}
	b.WriteString(`</FileLocations></GetExtendedUpdateInfo2Result></GetExtendedUpdateInfo2Response></Body></Envelope>`)
	return b.String()
}

func Test_ResolveFileURL(t *testing.T) {
	download := "http://tlu.dl.delivery.mp.microsoft.com/filestreamingservice/files/0d1a?P1=1&amp;P2=2"
	f := newFakeFE3(t, map[string]string{
		"/fe3cr/client.asmx/secured": locations(placeholder(), download),
	})
	c, ecc := f.client(t)

	url, ok, err := c.ResolveFileURL(context.Background(), ecc, UpdateIdentity{UpdateID: "u-1", RevisionNumber: "3"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://tlu.dl.delivery.mp.microsoft.com/filestreamingservice/files/0d1a?P1=1&P2=2", url)

	body := f.last.body
	assert.Contains(t, body, "ClientWebService/GetExtendedUpdateInfo2</a:Action>")
	assert.Contains(t, body, `<a:To mustUnderstand="1">`+f.server.URL+`/fe3cr/client.asmx/secured</a:To>`)
	assert.Contains(t, body, "<UpdateID>u-1</UpdateID>")
	assert.Contains(t, body, "<RevisionNumber>3</RevisionNumber>")
	assert.Contains(t, body, "<XmlUpdateFragmentType>FileUrl</XmlUpdateFragmentType>")
	assert.Contains(t, body, "<XmlUpdateFragmentType>FileDecryption</XmlUpdateFragmentType>")
	assert.Contains(t, body, "<deviceAttributes>FlightRing=Retail;</deviceAttributes>")
}

func Test_ResolveFileURLNoneQualifies(t *testing.T) {
	f := newFakeFE3(t, map[string]string{
		"/fe3cr/client.asmx/secured": locations(placeholder(), placeholder()),
	})
	c, ecc := f.client(t)

	url, ok, err := c.ResolveFileURL(context.Background(), ecc, UpdateIdentity{UpdateID: "u", RevisionNumber: "1"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, url)
}

func Test_NewClientDefaultEndpoints(t *testing.T) {
	c := NewClient(transport.New(nil, time.Second, ""), Endpoints{})
	assert.Equal(t, DefaultEndpoints(), c.endpoints)
	assert.Equal(t, DefaultFE3Endpoint, c.endpoints.FE3)
	assert.Equal(t, DefaultFE3CREndpoint, c.endpoints.FE3CR)

	c = NewClient(transport.New(nil, time.Second, ""), Endpoints{FE3: "https://fe3.example/client.asmx"})
	assert.Equal(t, "https://fe3.example/client.asmx", c.endpoints.FE3)
	assert.Equal(t, DefaultFE3CREndpoint, c.endpoints.FE3CR)
}

func Test_SelectLocation(t *testing.T) {
	require.Len(t, placeholder(), 99)

	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"first non placeholder", locations(placeholder(), "https://a/1", "https://b/2"), "https://a/1", true},
		{"first is fine", locations("https://a/1", placeholder()), "https://a/1", true},
		{"all placeholders", locations(placeholder(), placeholder(), placeholder()), "", false},
		{"empty url skipped", locations("", "https://c/3"), "https://c/3", true},
		{"no locations", `<Envelope><Body/></Envelope>`, "", false},
		{"location without url", `<r><FileLocation><FileDigest>x</FileDigest></FileLocation><FileLocation><Url>https://d/4</Url></FileLocation></r>`, "https://d/4", true},
		{"98 chars accepted", locations(placeholder()[:98]), placeholder()[:98], true},
		{"100 chars accepted", locations(placeholder() + "x"), placeholder() + "x", true},
		{"99 then 210", locations(placeholder(), placeholder()+strings.Repeat("q", 111)), placeholder() + strings.Repeat("q", 111), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := xmltree.ParseString(tt.body)
			require.NoError(t, err)

			got, ok := SelectLocation(doc)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
