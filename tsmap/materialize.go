// SPDX-License-Identifier: LGPL-3.0-or-later
// Author: Michel Prunet - Safe Pic Technologies
package tsmap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"tsmap-recover.safepic.fr/logger"
)

// Options tune a materialize pass. The zero value writes sequentially with
// plain path joining and no progress reporting.
type Options struct {
	// OnProgress receives one message per written file.
	OnProgress func(msg string)
	// Beautify applies a minimal JS/TS reformat before writing.
	Beautify bool
	// EOL normalises line endings: "unix", "dos" or "" to keep them.
	EOL string
	// Anchor re-roots leading "../" runs instead of rejecting them.
	Anchor bool
	// Concurrency bounds parallel writes; <=1 writes in map order.
	Concurrency int
}

type job struct {
	idx     int
	source  string
	path    string
	content string
}

type outcome struct {
	file     *MaterializedFile
	err      *SourceError
	canceled bool
}

// Materialize writes every embedded source of doc under outRoot.
//
// Per-source failures (path escapes, write errors) do not stop the pass: they
// are collected in Result.Failures and joined into the returned error. A
// cancelled ctx stops further writes and adds ctx.Err() to the returned
// error; sources not written because of it are not failures. The Result is
// always non-nil.
func Materialize(ctx context.Context, doc *Document, outRoot string, opts Options) (*Result, error) {
	res := &Result{}
	if strings.TrimSpace(outRoot) == "" {
		return res, fmt.Errorf("%w: empty output root", ErrWrite)
	}
	realRoot, err := realPath(outRoot)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	sources := doc.Sources()
	outcomes := make([]outcome, len(sources))
	r := newResolver(doc, outRoot, opts.Anchor)

	var jobs []job
	for i, id := range sources {
		content, ok := doc.ContentFor(id)
		if !ok {
			logger.Debug("skipped (no content): %s", id)
			res.Skipped = append(res.Skipped, id)
			continue
		}
		target, err := r.resolve(id)
		if err != nil {
			logger.Warn("path blocked: %s", id)
			outcomes[i].err = &SourceError{Source: id, Kind: ErrPathEscape, Err: unwrapKind(err, ErrPathEscape)}
			continue
		}
		jobs = append(jobs, job{idx: i, source: id, path: target, content: content})
	}

	p := &progress{fn: opts.OnProgress}
	run := func(j job) {
		outcomes[j.idx] = writeJob(ctx, j, realRoot, opts, p)
	}

	if opts.Concurrency <= 1 {
		for _, j := range jobs {
			run(j)
		}
	} else {
		// same target -> same goroutine, in map order, so the last one wins
		var order []string
		groups := make(map[string][]job)
		for _, j := range jobs {
			if _, ok := groups[j.path]; !ok {
				order = append(order, j.path)
			}
			groups[j.path] = append(groups[j.path], j)
		}
		sem := make(chan struct{}, opts.Concurrency)
		var wg sync.WaitGroup
		for _, path := range order {
			wg.Add(1)
			go func(g []job) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				for _, j := range g {
					run(j)
				}
			}(groups[path])
		}
		wg.Wait()
	}

	canceled := false
	for _, o := range outcomes {
		switch {
		case o.file != nil:
			res.Files = append(res.Files, *o.file)
			res.Written++
		case o.err != nil:
			res.Failures = append(res.Failures, o.err)
		case o.canceled:
			canceled = true
		}
	}
	if canceled {
		return res, errors.Join(ctx.Err(), joinFailures(res.Failures))
	}
	return res, joinFailures(res.Failures)
}

func writeJob(ctx context.Context, j job, realRoot string, opts Options, p *progress) outcome {
	if ctx.Err() != nil {
		return outcome{canceled: true}
	}
	// an existing symlink under the root must not lead the write outside it
	if err := mustStayUnder(realRoot, j.path); err != nil {
		logger.Warn("path blocked by symlink: %s", j.path)
		return outcome{err: &SourceError{Source: j.source, Path: j.path, Kind: ErrPathEscape, Err: unwrapKind(err, ErrPathEscape)}}
	}
	content := j.content
	if opts.Beautify {
		content = beautifyBasic(content)
	}
	content = normalizeEOL(content, opts.EOL)

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return outcome{err: &SourceError{Source: j.source, Path: j.path, Kind: ErrWrite, Err: err}}
	}
	if err := os.WriteFile(j.path, []byte(content), 0644); err != nil {
		return outcome{err: &SourceError{Source: j.source, Path: j.path, Kind: ErrWrite, Err: err}}
	}
	p.report("Saved source file: " + j.path)
	return outcome{file: &MaterializedFile{Source: j.source, Path: j.path, Size: len(content)}}
}

// progress serialises callback invocations and keeps a misbehaving
// callback from taking the pass down.
type progress struct {
	mu sync.Mutex
	fn func(string)
}

func (p *progress) report(msg string) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("progress callback panicked: %v", r)
		}
	}()
	p.fn(msg)
}

// unwrapKind strips the leading kind sentinel so SourceError does not carry
// it twice. Returns nil when err is the bare sentinel.
func unwrapKind(err, kind error) error {
	if err == kind {
		return nil
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range multi.Unwrap() {
			if e != kind {
				return e
			}
		}
	}
	return err
}
