/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

// Package failure holds the two outcome kinds of a pull: fatal errors, which
// abort the run, and warnings, which are recorded and skipped.
package failure

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	NetworkError            Kind = "NetworkError"
	XMLParseError           Kind = "XmlParseError"
	ProductNotFoundError    Kind = "ProductNotFoundError"
	SkuNotFoundError        Kind = "SkuNotFoundError"
	FulfillmentMissingError Kind = "FulfillmentMissingError"
	CookieMissingError      Kind = "CookieMissingError"

	FileNodeCorrelationWarning Kind = "FileNodeCorrelationWarning"
	FragmentCorrelationWarning Kind = "FragmentCorrelationWarning"
)

// Error is fatal. Constructors attach a stack trace, printed with %+v.
type Error struct {
	Kind  Kind
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Msg, e.cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

func New(kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(&Error{
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
	})
}

func Wrap(cause error, kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(&Error{
		Kind:  kind,
		Msg:   fmt.Sprintf(format, args...),
		cause: cause,
	})
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Name is the error name reported to the host: the kind when known.
func Name(err error) string {
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "Error"
}

// Warning is a recoverable, per-node outcome. It is not an error value.
type Warning struct {
	Kind   Kind
	NodeID int
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: node %d: %s", w.Kind, w.NodeID, w.Reason)
}
