/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package wuclient

import (
	"bytes"
	"encoding/xml"
	"strings"
	"text/template"
	"time"
)

const (
	ActionGetCookie              = "GetCookie"
	ActionSyncUpdates            = "SyncUpdates"
	ActionGetExtendedUpdateInfo2 = "GetExtendedUpdateInfo2"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
	timestampTTL    = 5 * time.Minute
)

var envelopeFuncs = template.FuncMap{
	"xml": func(s string) string {
		var b strings.Builder
		_ = xml.EscapeText(&b, []byte(s))
		return b.String()
	},
	"stamp": func(t time.Time) string {
		return t.UTC().Format(timestampLayout)
	},
	"instant": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}

var getCookieEnvelope = template.Must(template.New(ActionGetCookie).Funcs(envelopeFuncs).Parse(
	`<Envelope xmlns="http://www.w3.org/2003/05/soap-envelope" xmlns:a="http://www.w3.org/2005/08/addressing" xmlns:u="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd">
<Header>
    <a:Action mustUnderstand="1">http://www.microsoft.com/SoftwareDistribution/Server/ClientWebService/GetCookie</a:Action>
    <a:To mustUnderstand="1">{{xml .To}}</a:To>
    <Security mustUnderstand="1" xmlns="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">
        <WindowsUpdateTicketsToken xmlns="http://schemas.microsoft.com/msus/2014/10/WindowsUpdateAuthorization" u:id="ClientMSA">
        </WindowsUpdateTicketsToken>
    </Security>
</Header>
<Body></Body>
</Envelope>`))

var syncUpdatesEnvelope = template.Must(template.New(ActionSyncUpdates).Funcs(envelopeFuncs).Parse(
	`<s:Envelope xmlns:a="http://www.w3.org/2005/08/addressing" xmlns:s="http://www.w3.org/2003/05/soap-envelope">
<s:Header>
    <a:Action s:mustUnderstand="1">http://www.microsoft.com/SoftwareDistribution/Server/ClientWebService/SyncUpdates</a:Action>
    <a:MessageID>urn:uuid:{{.MessageID}}</a:MessageID>
    <a:To s:mustUnderstand="1">{{xml .To}}</a:To>
    <o:Security s:mustUnderstand="1" xmlns:o="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">
        <Timestamp xmlns="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd">
            <Created>{{stamp .Created}}</Created>
            <Expires>{{stamp .Expires}}</Expires>
        </Timestamp>
        <wuws:WindowsUpdateTicketsToken wsu:id="ClientMSA" xmlns:wsu="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd" xmlns:wuws="http://schemas.microsoft.com/msus/2014/10/WindowsUpdateAuthorization">
            <TicketType Name="MSA" Version="1.0" Policy="MBI_SSL">
                Retail
            </TicketType>
        </wuws:WindowsUpdateTicketsToken>
    </o:Security>
</s:Header>
<s:Body>
    <SyncUpdates xmlns="http://www.microsoft.com/SoftwareDistribution/Server/ClientWebService">
        <cookie>
            <Expiration>{{instant .Cookie.Expiration}}</Expiration>
            <EncryptedData>{{xml .Cookie.EncryptedData}}</EncryptedData>
        </cookie>
        <parameters>
            <ExpressQuery>false</ExpressQuery>
            <InstalledNonLeafUpdateIDs>
{{- range .Installed}}
                <int>{{.}}</int>
{{- end}}
            </InstalledNonLeafUpdateIDs>
            <OtherCachedUpdateIDs>
{{- range .Cached}}
                <int>{{.}}</int>
{{- end}}
            </OtherCachedUpdateIDs>
            <SkipSoftwareSync>false</SkipSoftwareSync>
            <NeedTwoGroupOutOfScopeUpdates>true</NeedTwoGroupOutOfScopeUpdates>
            <FilterAppCategoryIds>
                <CategoryIdentifier>
                    <Id>{{xml .CategoryID}}</Id>
                </CategoryIdentifier>
            </FilterAppCategoryIds>
            <TreatAppCategoryIdsAsInstalled>true</TreatAppCategoryIdsAsInstalled>
            <AlsoPerformRegularSync>false</AlsoPerformRegularSync>
            <ComputerSpec />
            <ExtendedUpdateInfoParameters>
                <XmlUpdateFragmentTypes>
                    <XmlUpdateFragmentType>Extended</XmlUpdateFragmentType>
                </XmlUpdateFragmentTypes>
                <Locales>
                    <string>en-US</string>
                    <string>en</string>
                </Locales>
            </ExtendedUpdateInfoParameters>
            <ClientPreferredLanguages>
                <string>en-US</string>
            </ClientPreferredLanguages>
            <ProductsParameters>
                <SyncCurrentVersionOnly>false</SyncCurrentVersionOnly>
                <DeviceAttributes>
                    BranchReadinessLevel=CB;CurrentBranch=rs_prerelease;FlightRing=Retail;FlightingBranchName=external;IsFlightingEnabled=1;InstallLanguage=en-US;OSUILocale=en-US;InstallationType=Client;DeviceFamily=Windows.Desktop;
                </DeviceAttributes>
                <CallerAttributes>Interactive=1;IsSeeker=0;</CallerAttributes>
                <Products />
            </ProductsParameters>
        </parameters>
    </SyncUpdates>
</s:Body>
</s:Envelope>`))

var extendedUpdateInfoEnvelope = template.Must(template.New(ActionGetExtendedUpdateInfo2).Funcs(envelopeFuncs).Parse(
	`<Envelope xmlns="http://www.w3.org/2003/05/soap-envelope" xmlns:a="http://www.w3.org/2005/08/addressing" xmlns:u="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd">
<Header>
<a:Action mustUnderstand="1">http://www.microsoft.com/SoftwareDistribution/Server/ClientWebService/GetExtendedUpdateInfo2</a:Action>
<a:To mustUnderstand="1">{{xml .To}}</a:To>
<Security mustUnderstand="1" xmlns="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">
    <WindowsUpdateTicketsToken xmlns="http://schemas.microsoft.com/msus/2014/10/WindowsUpdateAuthorization" u:id="ClientMSA">
    </WindowsUpdateTicketsToken>
</Security>
</Header>
<Body>
<GetExtendedUpdateInfo2 xmlns="http://www.microsoft.com/SoftwareDistribution/Server/ClientWebService">
    <updateIDs>
        <UpdateIdentity>
            <UpdateID>{{xml .Identity.UpdateID}}</UpdateID>
            <RevisionNumber>{{xml .Identity.RevisionNumber}}</RevisionNumber>
        </UpdateIdentity>
    </updateIDs>
    <infoTypes>
        <XmlUpdateFragmentType>FileUrl</XmlUpdateFragmentType>
        <XmlUpdateFragmentType>FileDecryption</XmlUpdateFragmentType>
    </infoTypes>
    <deviceAttributes>FlightRing=Retail;</deviceAttributes>
</GetExtendedUpdateInfo2>
</Body>
</Envelope>`))

type cookieRequest struct {
	To string
}

type syncRequest struct {
	To         string
	MessageID  string
	Created    time.Time
	Expires    time.Time
	Cookie     SessionCookie
	CategoryID string
	Installed  []int
	Cached     []int
}

type extendedInfoRequest struct {
	To       string
	Identity UpdateIdentity
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
