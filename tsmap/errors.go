// SPDX-License-Identifier: LGPL-3.0-or-later
// Author: Michel Prunet - Safe Pic Technologies
package tsmap

import (
	"errors"
	"fmt"
)

var (
	// ErrRead: the source map could not be read (missing, permission, I/O).
	ErrRead = errors.New("read source map")
	// ErrParse: the source map is not JSON or lacks a sources list.
	ErrParse = errors.New("parse source map")
	// ErrWrite: a recovered file or its directory could not be written.
	ErrWrite = errors.New("write source")
	// ErrPathEscape: a source resolves outside the output root.
	ErrPathEscape = errors.New("path escapes output root")
)

// SourceError is a failure tied to one logical source.
type SourceError struct {
	Source string
	Path   string
	Kind   error
	Err    error
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.Source)
	if e.Path != "" {
		msg += " -> " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// joinFailures folds per-source failures into one error, nil when empty.
func joinFailures(fs []*SourceError) error {
	if len(fs) == 0 {
		return nil
	}
	errs := make([]error, len(fs))
	for i, f := range fs {
		errs[i] = f
	}
	return errors.Join(errs...)
}
