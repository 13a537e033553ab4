/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/sht2017/Pull-Microsoft-Store/rootprogram"
	"github.com/sht2017/Pull-Microsoft-Store/storefront"
	"github.com/sht2017/Pull-Microsoft-Store/wuclient"
	"github.com/spf13/pflag"
	"gopkg.in/ini.v1"
)

const (
	DefaultStoreAPI       = storefront.DefaultStoreAPI
	DefaultFE3Endpoint    = wuclient.DefaultFE3Endpoint
	DefaultFE3CREndpoint  = wuclient.DefaultFE3CREndpoint
	DefaultRootCertURL    = rootprogram.MicrosoftRootURL
	DefaultEccRootCertURL = rootprogram.MicrosoftEccRootURL
	DefaultUserAgent      = "pull-msstore"

	defaultConfigName = ".pull-msstore.ini"
)

var OutputFormats = []string{"table", "json", "yaml"}

type MSConfig struct {
	ProductID           *string
	OutputPath          *string
	StoreAPI            *string
	FE3Endpoint         *string
	FE3CREndpoint       *string
	RootCertURL         *string
	EccRootCertURL      *string
	Timeout             *time.Duration
	MaxConcurrency      *int
	NoBars              *bool
	OutputRefreshPeriod *time.Duration
	StatsRefreshPeriod  *time.Duration
	UserAgent           *string
	Output              *string
	Config              *string

	flags flagValues
}

// flagValues holds what pflag parsed. Only flags the user actually set win
// over the config file and environment.
type flagValues struct {
	config              string
	productID           string
	outputPath          string
	storeAPI            string
	fe3                 string
	fe3cr               string
	rootCertURL         string
	eccRootCertURL      string
	timeout             time.Duration
	maxConcurrency      int
	noBars              bool
	outputRefreshPeriod time.Duration
	statsRefreshPeriod  time.Duration
	userAgent           string
	output              string
}

func confInt(p *int, section *ini.Section, key string, def int) {
	val, ok := os.LookupEnv(key)
	if ok {
		i, err := strconv.ParseInt(val, 10, 32)
		if err == nil {
			*p = int(i)
			return
		}
	}

	*p = def
	if section != nil {
		k := section.Key(key)
		if k != nil {
			v, err := k.Int()
			if err == nil {
				*p = v
			}
		}
	}
}

func confBool(p *bool, section *ini.Section, key string, def bool) {
	// Final override is the environment variable
	val, ok := os.LookupEnv(key)
	if ok {
		b, err := strconv.ParseBool(val)
		if err == nil {
			*p = b
			return
		}
	}

	*p = def
	if section != nil {
		k := section.Key(key)
		if k != nil {
			v, err := k.Bool()
			if err == nil {
				*p = v
			}
		}
	}
}

func confString(p *string, section *ini.Section, key string, def string) {
	*p = def
	if section != nil {
		k := section.Key(key)
		if k != nil && len(k.String()) > 0 {
			*p = k.String()
		}
	}
	val, ok := os.LookupEnv(key)
	if ok {
		*p = val
	}
}

func confDuration(p *time.Duration, section *ini.Section, key string, def time.Duration) {
	val, ok := os.LookupEnv(key)
	if ok {
		d, err := time.ParseDuration(val)
		if err == nil {
			*p = d
			return
		}
		glog.Warningf("Ignoring %s=%q from the environment: %s", key, val, err)
	}

	*p = def
	if section != nil {
		k := section.Key(key)
		if k != nil {
			v, err := k.Duration()
			if err == nil {
				*p = v
			}
		}
	}
}

func NewMSConfig() *MSConfig {
	return &MSConfig{
		ProductID:           new(string),
		OutputPath:          new(string),
		StoreAPI:            new(string),
		FE3Endpoint:         new(string),
		FE3CREndpoint:       new(string),
		RootCertURL:         new(string),
		EccRootCertURL:      new(string),
		Timeout:             new(time.Duration),
		MaxConcurrency:      new(int),
		NoBars:              new(bool),
		OutputRefreshPeriod: new(time.Duration),
		StatsRefreshPeriod:  new(time.Duration),
		UserAgent:           new(string),
		Output:              new(string),
		Config:              new(string),
	}
}

// AddFlags registers the command line flags. Defaults shown there are
// informational; Init decides precedence.
func (c *MSConfig) AddFlags(fs *pflag.FlagSet) {
	f := &c.flags
	fs.StringVar(&f.config, "config", "", "configuration .ini file (default ~/"+defaultConfigName+" when present)")
	fs.StringVar(&f.productID, "product-id", "", "Microsoft Store product id, e.g. 9WZDNCRFJ3TJ")
	fs.StringVar(&f.outputPath, "output-path", "", "directory to download into (default current directory)")
	fs.StringVar(&f.storeAPI, "store-api", DefaultStoreAPI, "storefront catalog API base URL")
	fs.StringVar(&f.fe3, "fe3-endpoint", DefaultFE3Endpoint, "FE3 client web service URL")
	fs.StringVar(&f.fe3cr, "fe3cr-endpoint", DefaultFE3CREndpoint, "FE3CR client web service URL")
	fs.StringVar(&f.rootCertURL, "root-cert-url", DefaultRootCertURL, "where to fetch the Microsoft Root certificate")
	fs.StringVar(&f.eccRootCertURL, "ecc-root-cert-url", DefaultEccRootCertURL, "where to fetch the Microsoft ECC Root certificate")
	fs.DurationVar(&f.timeout, "timeout", 120*time.Second, "abort a request whose response headers take longer than this")
	fs.IntVar(&f.maxConcurrency, "max-concurrency", 0, "limit on concurrent file resolutions and downloads, 0 for no limit")
	fs.BoolVar(&f.noBars, "nobars", false, "disable progress bars")
	fs.DurationVar(&f.outputRefreshPeriod, "output-refresh-period", 125*time.Millisecond, "speed for refreshing progress")
	fs.DurationVar(&f.statsRefreshPeriod, "stats-refresh-period", 10*time.Minute, "period between stats being dumped to stderr")
	fs.StringVar(&f.userAgent, "user-agent", DefaultUserAgent, "User-Agent header for outbound requests")
	fs.StringVarP(&f.output, "output", "o", "table", "summary format: table, json or yaml")
}

func defaultConfigFile() string {
	userObj, err := user.Current()
	if err != nil {
		return ""
	}
	defPath := filepath.Join(userObj.HomeDir, defaultConfigName)
	if _, err := os.Stat(defPath); err != nil {
		return ""
	}
	return defPath
}

// Init fills the configuration as defaults < config file < environment <
// explicitly set flags. fs may be nil.
func (c *MSConfig) Init(fs *pflag.FlagSet) {
	changed := func(name string) bool {
		return fs != nil && fs.Changed(name)
	}

	confFile := c.flags.config
	if len(confFile) == 0 {
		confFile = defaultConfigFile()
	}
	*c.Config = confFile

	// First, check the config file, which might have come from a CLI paramater
	var section *ini.Section
	if len(confFile) > 0 {
		cfg, err := ini.Load(confFile)
		if err == nil {
			glog.Infof("Loaded config file from %s\n", confFile)
			section = cfg.Section("")
		} else {
			glog.Errorf("Could not load config file: %s\n", err)
		}
	}

	// Fill in values, where conf file < env vars
	confString(c.ProductID, section, "productId", "")
	confString(c.OutputPath, section, "outputPath", "")
	confString(c.StoreAPI, section, "storeApi", DefaultStoreAPI)
	confString(c.FE3Endpoint, section, "fe3Endpoint", DefaultFE3Endpoint)
	confString(c.FE3CREndpoint, section, "fe3crEndpoint", DefaultFE3CREndpoint)
	confString(c.RootCertURL, section, "rootCertUrl", DefaultRootCertURL)
	confString(c.EccRootCertURL, section, "eccRootCertUrl", DefaultEccRootCertURL)
	confDuration(c.Timeout, section, "timeout", 120*time.Second)
	confInt(c.MaxConcurrency, section, "maxConcurrency", 0)
	confBool(c.NoBars, section, "nobars", false)
	confDuration(c.OutputRefreshPeriod, section, "outputRefreshPeriod", 125*time.Millisecond)
	confDuration(c.StatsRefreshPeriod, section, "statsRefreshPeriod", 10*time.Minute)
	confString(c.UserAgent, section, "userAgent", DefaultUserAgent)
	confString(c.Output, section, "output", "table")

	// Finally, CLI flags override
	f := c.flags
	overrides := []struct {
		flag  string
		apply func()
	}{
		{"product-id", func() { *c.ProductID = f.productID }},
		{"output-path", func() { *c.OutputPath = f.outputPath }},
		{"store-api", func() { *c.StoreAPI = f.storeAPI }},
		{"fe3-endpoint", func() { *c.FE3Endpoint = f.fe3 }},
		{"fe3cr-endpoint", func() { *c.FE3CREndpoint = f.fe3cr }},
		{"root-cert-url", func() { *c.RootCertURL = f.rootCertURL }},
		{"ecc-root-cert-url", func() { *c.EccRootCertURL = f.eccRootCertURL }},
		{"timeout", func() { *c.Timeout = f.timeout }},
		{"max-concurrency", func() { *c.MaxConcurrency = f.maxConcurrency }},
		{"nobars", func() { *c.NoBars = f.noBars }},
		{"output-refresh-period", func() { *c.OutputRefreshPeriod = f.outputRefreshPeriod }},
		{"stats-refresh-period", func() { *c.StatsRefreshPeriod = f.statsRefreshPeriod }},
		{"user-agent", func() { *c.UserAgent = f.userAgent }},
		{"output", func() { *c.Output = f.output }},
	}
	for _, o := range overrides {
		if changed(o.flag) {
			o.apply()
		}
	}
}

// ApplyActionInputs fills the product id and output path from GitHub Actions
// inputs when nothing else supplied them.
func (c *MSConfig) ApplyActionInputs(getInput func(name string) string) {
	if len(*c.ProductID) == 0 {
		*c.ProductID = getInput("product-id")
	}
	if len(*c.OutputPath) == 0 {
		*c.OutputPath = getInput("output-path")
	}
}

// Validate checks the final values and resolves the default output path.
func (c *MSConfig) Validate() error {
	if len(*c.ProductID) == 0 {
		return errors.New("a product id is required")
	}
	if *c.MaxConcurrency < 0 {
		return errors.Errorf("maxConcurrency must not be negative, got %d", *c.MaxConcurrency)
	}
	if *c.Timeout <= 0 {
		return errors.Errorf("timeout must be positive, got %s", *c.Timeout)
	}
	valid := false
	for _, f := range OutputFormats {
		if *c.Output == f {
			valid = true
		}
	}
	if !valid {
		return errors.Errorf("unknown output format %q, expected one of %v", *c.Output, OutputFormats)
	}
	if len(*c.OutputPath) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return errors.Wrap(err, "resolving the current directory")
		}
		*c.OutputPath = cwd
	}
	return nil
}

func (c *MSConfig) Usage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment variable or config file directives:")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "productId = Microsoft Store product id to pull")
	fmt.Fprintln(w, "outputPath = Directory to download into, created when missing")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "storeApi = Base URL of the storefront catalog API")
	fmt.Fprintln(w, "fe3Endpoint = URL of the FE3 client web service, used for SyncUpdates")
	fmt.Fprintln(w, "fe3crEndpoint = URL of the FE3CR client web service, used for cookies and file URLs")
	fmt.Fprintln(w, "rootCertUrl = Where to fetch the Microsoft Root certificate")
	fmt.Fprintln(w, "eccRootCertUrl = Where to fetch the Microsoft ECC Root certificate")
	fmt.Fprintln(w, "timeout = Abort a request whose headers take longer than this, e.g. 120s")
	fmt.Fprintln(w, "maxConcurrency = Limit on concurrent file resolutions and downloads, 0 for no limit")
	fmt.Fprintln(w, "nobars = Disable progress bars")
	fmt.Fprintln(w, "outputRefreshPeriod = Period between progress bar refreshes")
	fmt.Fprintln(w, "statsRefreshPeriod = Period between stats being dumped to stderr")
	fmt.Fprintln(w, "userAgent = User-Agent header for outbound requests")
	fmt.Fprintln(w, "output = Summary format: table, json or yaml")
}
