/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

// Package correlate joins the file listings and the update identities of a
// synchronised catalog into one entry per installable file.
package correlate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-multierror"
	"github.com/sht2017/Pull-Microsoft-Store/failure"
	"github.com/sht2017/Pull-Microsoft-Store/wuclient"
	"github.com/sht2017/Pull-Microsoft-Store/xmltree"
)

// Where each piece lives relative to the element a pass starts from. Both
// passes climb to the UpdateInfo record that carries the numeric ID.
const (
	filesOwnerDepth    = 2 // Files -> Xml -> UpdateInfo
	fragmentOwnerDepth = 3 // SecuredFragment -> Properties -> Xml -> UpdateInfo
	identityHostDepth  = 2 // first element under Xml is UpdateIdentity
)

// UpdateEntry is one downloadable file and the update that locates it.
type UpdateEntry struct {
	Filename string
	Identity wuclient.UpdateIdentity
}

// Result is the outcome of one correlation over a sync response.
type Result struct {
	// Files maps the catalog ID to the composed filename.
	Files map[string]string
	// Updates maps a filename to the identity that resolves it.
	Updates  map[string]UpdateEntry
	Warnings []failure.Warning
}

// Filename composes the on-disk name of a package file.
func Filename(installerSpecificID string, fileName string) string {
	return installerSpecificID + "_" + fileName
}

// Sorted returns the update entries ordered by filename.
func (r *Result) Sorted() []UpdateEntry {
	out := make([]UpdateEntry, 0, len(r.Updates))
	for _, u := range r.Updates {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Filename < out[j].Filename
	})
	return out
}

// WarningsErr folds the warnings into one error for logging, or nil.
func (r *Result) WarningsErr() error {
	var merr *multierror.Error
	for _, w := range r.Warnings {
		merr = multierror.Append(merr, fmt.Errorf("%s", w))
	}
	if merr == nil {
		return nil
	}
	merr.ErrorFormat = func(errs []error) string {
		lines := make([]string, len(errs))
		for i, e := range errs {
			lines[i] = e.Error()
		}
		return fmt.Sprintf("%d correlation warning(s): %s", len(errs), strings.Join(lines, "; "))
	}
	return merr
}

type correlator struct {
	doc    *xmltree.Document
	result *Result
}

func (c *correlator) warn(kind failure.Kind, node int, format string, args ...interface{}) {
	metrics.IncrCounter([]string{"correlate", "warning", string(kind)}, 1)
	c.result.Warnings = append(c.result.Warnings, failure.Warning{
		Kind:   kind,
		NodeID: node,
		Reason: fmt.Sprintf(format, args...),
	})
}

// ownerID reads the first ID below the ancestor depth levels above node.
func (c *correlator) ownerID(node int, depth int) (string, string) {
	owner := c.doc.Ancestor(node, depth)
	if owner == xmltree.None {
		return "", fmt.Sprintf("no ancestor %d levels up", depth)
	}
	idNode := c.doc.FirstDescendant(owner, "ID")
	if idNode == xmltree.None {
		return "", "no ID element"
	}
	id, ok := c.doc.Value(idNode)
	if !ok {
		return "", "empty ID element"
	}
	return id, ""
}

func (c *correlator) files(prefix string) {
	for _, node := range c.doc.ElementsByName("Files") {
		fileID, problem := c.ownerID(node, filesOwnerDepth)
		if problem != "" {
			c.warn(failure.FileNodeCorrelationWarning, node, "%s", problem)
			continue
		}

		entry := c.doc.FirstChildElement(node)
		if entry == xmltree.None {
			c.warn(failure.FileNodeCorrelationWarning, node, "no file entry for ID %s", fileID)
			continue
		}
		isi, ok := c.doc.Attr(entry, "InstallerSpecificIdentifier")
		if !ok {
			c.warn(failure.FileNodeCorrelationWarning, node, "missing InstallerSpecificIdentifier for ID %s", fileID)
			continue
		}
		name, ok := c.doc.Attr(entry, "FileName")
		if !ok {
			c.warn(failure.FileNodeCorrelationWarning, node, "missing FileName for ID %s", fileID)
			continue
		}

		filename := Filename(isi, name)
		if strings.HasPrefix(filename, prefix) {
			c.result.Files[fileID] = filename
		}
	}
}

func (c *correlator) fragments() {
	for _, node := range c.doc.ElementsByName("SecuredFragment") {
		fileID, problem := c.ownerID(node, fragmentOwnerDepth)
		if problem != "" {
			c.warn(failure.FragmentCorrelationWarning, node, "%s", problem)
			continue
		}
		filename, known := c.result.Files[fileID]
		if !known {
			continue
		}

		identity := c.doc.FirstChildElement(c.doc.Ancestor(node, identityHostDepth))
		if identity == xmltree.None {
			c.warn(failure.FragmentCorrelationWarning, node, "no update identity for %s", filename)
			continue
		}
		updateID, ok := c.doc.Attr(identity, "UpdateID")
		if !ok {
			c.warn(failure.FragmentCorrelationWarning, node, "missing UpdateID for %s", filename)
			continue
		}
		revision, ok := c.doc.Attr(identity, "RevisionNumber")
		if !ok {
			c.warn(failure.FragmentCorrelationWarning, node, "missing RevisionNumber for %s", filename)
			continue
		}

		c.result.Updates[filename] = UpdateEntry{
			Filename: filename,
			Identity: wuclient.UpdateIdentity{UpdateID: updateID, RevisionNumber: revision},
		}
	}
}

// Correlate runs the file pass and then the fragment pass over doc. Only files
// whose name starts with prefix are kept. It does not modify doc.
func Correlate(doc *xmltree.Document, prefix string) *Result {
	c := &correlator{
		doc: doc,
		result: &Result{
			Files:   make(map[string]string),
			Updates: make(map[string]UpdateEntry),
		},
	}
	c.files(prefix)
	c.fragments()
	return c.result
}
