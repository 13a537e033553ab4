/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gosuri/uitable"
	"github.com/pkg/errors"
	"github.com/sht2017/Pull-Microsoft-Store/engine"
	"sigs.k8s.io/yaml"
)

func writeReport(w io.Writer, report *engine.Report, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encoding report")
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		data, err := yaml.Marshal(report)
		if err != nil {
			return errors.Wrap(err, "encoding report")
		}
		_, err = w.Write(data)
		return err
	case "table", "":
		return formatTable(w, report)
	}
	return errors.Errorf("unknown output format %q", format)
}

func formatTable(w io.Writer, report *engine.Report) error {
	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("FILE", "UPDATE", "REVISION", "SIZE", "STATUS")
	for _, f := range report.Files {
		status := "downloaded"
		if !f.Resolved {
			status = "no location"
		}
		table.AddRow(f.Filename, f.Identity.UpdateID, f.Identity.RevisionNumber, f.Bytes, status)
	}
	_, err := fmt.Fprintln(w, table)
	if err != nil {
		return err
	}
	if len(report.Warnings) > 0 {
		_, err = fmt.Fprintf(w, "%d correlation warning(s), see the log\n", len(report.Warnings))
	}
	return err
}
