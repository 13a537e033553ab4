package config

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/ini.v1"
)

func Test_Defaults(t *testing.T) {
	var section *ini.Section

	var i int
	confInt(&i, section, "var", -99)
	if i != -99 {
		t.Errorf("Expected the default of -99, got %d", i)
	}

	var b bool
	confBool(&b, section, "var", true)
	if b != true {
		t.Errorf("Expected default of true")
	}

	confBool(&b, section, "var", false)
	if b != false {
		t.Errorf("Expected default of false")
	}

	var s string
	confString(&s, section, "var", "hotdog")
	if s != "hotdog" {
		t.Errorf("Expected the default of hotdog, got %s", s)
	}

	var d time.Duration
	confDuration(&d, section, "var", 120*time.Second)
	if d != 120*time.Second {
		t.Errorf("Expected the default of 120s, got %s", d)
	}
}

func Test_SectionOverride(t *testing.T) {
	cfg := ini.Empty()
	section, err := cfg.NewSection("new section")
	if err != nil {
		t.Error(err)
	}

	_, _ = section.NewKey("signedint", "-42")

	var i int
	confInt(&i, section, "signedint", -99)
	if i != -42 {
		t.Errorf("Expected the config value of -42, got %d", i)
	}

	_, _ = section.NewKey("booltrue", "true")

	var b bool
	confBool(&b, section, "booltrue", false)
	if b != true {
		t.Error("Expected true")
	}

	_, _ = section.NewKey("string", "sandwich")

	var s string
	confString(&s, section, "string", "doom")
	if s != "sandwich" {
		t.Errorf("Expected the value sandwich, got %s", s)
	}

	_, _ = section.NewKey("duration", "45s")

	var d time.Duration
	confDuration(&d, section, "duration", time.Minute)
	if d != 45*time.Second {
		t.Errorf("Expected the value 45s, got %s", d)
	}

	_, _ = section.NewKey("badduration", "soon")
	confDuration(&d, section, "badduration", time.Minute)
	if d != time.Minute {
		t.Errorf("Expected the default for an unparsable value, got %s", d)
	}
}

func Test_EnvOverride(t *testing.T) {
	cfg := ini.Empty()
	section := cfg.Section("")
	_, _ = section.NewKey("maxConcurrency", "2")
	_, _ = section.NewKey("timeout", "30s")
	_, _ = section.NewKey("productId", "fromfile")

	t.Setenv("maxConcurrency", "8")
	t.Setenv("timeout", "1m")
	t.Setenv("productId", "fromenv")

	var i int
	confInt(&i, section, "maxConcurrency", 0)
	if i != 8 {
		t.Errorf("Expected env value 8, got %d", i)
	}

	var d time.Duration
	confDuration(&d, section, "timeout", 0)
	if d != time.Minute {
		t.Errorf("Expected env value 1m, got %s", d)
	}

	var s string
	confString(&s, section, "productId", "")
	if s != "fromenv" {
		t.Errorf("Expected env value, got %s", s)
	}
}

func writeConfigFile(t *testing.T, contents string) string {
	dir, err := ioutil.TempDir("", "Test_Config")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "pull-msstore.ini")
	if err := ioutil.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func parse(t *testing.T, args ...string) *MSConfig {
	c := NewMSConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	c.Init(fs)
	return c
}

func Test_InitLayering(t *testing.T) {
	path := writeConfigFile(t, `
productId = 9WZDNCRFJ3TJ
outputPath = /from/file
maxConcurrency = 4
timeout = 30s
output = json
`)
	t.Setenv("outputPath", "/from/env")

	c := parse(t, "--config", path, "--output", "yaml")

	if *c.Config != path {
		t.Errorf("Expected config path %s, got %s", path, *c.Config)
	}
	if *c.ProductID != "9WZDNCRFJ3TJ" {
		t.Errorf("Expected product id from file, got %s", *c.ProductID)
	}
	if *c.OutputPath != "/from/env" {
		t.Errorf("Expected env to beat the file, got %s", *c.OutputPath)
	}
	if *c.MaxConcurrency != 4 {
		t.Errorf("Expected 4 from file, got %d", *c.MaxConcurrency)
	}
	if *c.Timeout != 30*time.Second {
		t.Errorf("Expected 30s from file, got %s", *c.Timeout)
	}
	if *c.Output != "yaml" {
		t.Errorf("Expected the flag to beat the file, got %s", *c.Output)
	}
	// Flags left at their defaults do not clobber the file.
	if *c.StoreAPI != DefaultStoreAPI {
		t.Errorf("Unexpected store API %s", *c.StoreAPI)
	}
}

func Test_InitDefaults(t *testing.T) {
	c := parse(t, "--config", writeConfigFile(t, ""))

	if *c.Timeout != 120*time.Second {
		t.Errorf("Expected 120s, got %s", *c.Timeout)
	}
	if *c.MaxConcurrency != 0 {
		t.Errorf("Expected unbounded, got %d", *c.MaxConcurrency)
	}
	if *c.OutputRefreshPeriod != 125*time.Millisecond {
		t.Errorf("Expected 125ms, got %s", *c.OutputRefreshPeriod)
	}
	if *c.StatsRefreshPeriod != 10*time.Minute {
		t.Errorf("Expected 10m, got %s", *c.StatsRefreshPeriod)
	}
	if *c.FE3Endpoint != DefaultFE3Endpoint || *c.FE3CREndpoint != DefaultFE3CREndpoint {
		t.Error("Unexpected endpoints")
	}
	if *c.Output != "table" {
		t.Errorf("Expected table, got %s", *c.Output)
	}
}

func Test_InitFlags(t *testing.T) {
	c := parse(t, "--config", writeConfigFile(t, "nobars = false\n"),
		"--product-id", "9NBLGGH4NNS1", "--nobars", "--max-concurrency", "3",
		"--fe3-endpoint", "https://127.0.0.1/fe3", "--timeout", "5s")

	if *c.ProductID != "9NBLGGH4NNS1" {
		t.Errorf("Unexpected product id %s", *c.ProductID)
	}
	if !*c.NoBars {
		t.Error("Expected nobars from the flag")
	}
	if *c.MaxConcurrency != 3 {
		t.Errorf("Expected 3, got %d", *c.MaxConcurrency)
	}
	if *c.FE3Endpoint != "https://127.0.0.1/fe3" {
		t.Errorf("Unexpected endpoint %s", *c.FE3Endpoint)
	}
	if *c.Timeout != 5*time.Second {
		t.Errorf("Expected 5s, got %s", *c.Timeout)
	}
}

func Test_ActionInputs(t *testing.T) {
	inputs := map[string]string{"product-id": "fromaction", "output-path": "out"}
	get := func(name string) string { return inputs[name] }

	c := parse(t, "--config", writeConfigFile(t, ""))
	c.ApplyActionInputs(get)
	if *c.ProductID != "fromaction" || *c.OutputPath != "out" {
		t.Errorf("Expected action inputs, got %s %s", *c.ProductID, *c.OutputPath)
	}

	c = parse(t, "--config", writeConfigFile(t, ""), "--product-id", "fromflag")
	c.ApplyActionInputs(get)
	if *c.ProductID != "fromflag" {
		t.Errorf("The flag should win over the action input, got %s", *c.ProductID)
	}
}

func Test_Validate(t *testing.T) {
	c := parse(t, "--config", writeConfigFile(t, ""))
	if err := c.Validate(); err == nil {
		t.Error("A missing product id should fail")
	}

	*c.ProductID = "9WZDNCRFJ3TJ"
	*c.Output = "xml"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("Expected output format error, got %v", err)
	}

	*c.Output = "json"
	*c.MaxConcurrency = -1
	if err := c.Validate(); err == nil {
		t.Error("Negative concurrency should fail")
	}

	*c.MaxConcurrency = 0
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	cwd, _ := os.Getwd()
	if *c.OutputPath != cwd {
		t.Errorf("Expected output path to default to %s, got %s", cwd, *c.OutputPath)
	}
}

func Test_Usage(t *testing.T) {
	var buf bytes.Buffer
	NewMSConfig().Usage(&buf)
	for _, key := range []string{"productId", "outputPath", "maxConcurrency", "timeout", "eccRootCertUrl"} {
		if !strings.Contains(buf.String(), key+" = ") {
			t.Errorf("Usage should describe %s", key)
		}
	}
}
