// SPDX-License-Identifier: LGPL-3.0-or-later
// Author: Michel Prunet - Safe Pic Technologies
package tsmap

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// resolver maps logical source ids to files under root.
type resolver struct {
	root string
	// anchored mode only
	anchored   bool
	baseAnchor string
	subAnchor  string
}

func newResolver(doc *Document, root string, anchored bool) *resolver {
	r := &resolver{root: root, anchored: anchored}
	if anchored {
		r.baseAnchor, r.subAnchor = buildAnchors(root, computeMaxLeadingUps(doc))
	}
	return r
}

// resolve returns the target file for id. Errors wrap ErrPathEscape.
func (r *resolver) resolve(id string) (string, error) {
	norm := normalizeKeepDots(id)
	if r.anchored {
		_, abs, err := resolveUnderAnchor(r.root, r.baseAnchor, r.subAnchor, norm)
		return abs, err
	}
	clean := filepath.Join(r.root, filepath.FromSlash(norm))
	if err := mustBeUnder(r.root, clean); err != nil {
		return "", err
	}
	rel, err := filepath.Rel(r.root, clean)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPathEscape, err)
	}
	rel = sanitizeSegments(rel)
	if rel == "" || rel == "." {
		rel = "unnamed"
	}
	return filepath.Join(r.root, rel), nil
}

// ---------- Anchoring & path logic ----------

// max leading "../" over sources that carry content
func computeMaxLeadingUps(doc *Document) int {
	maxUp := 0
	for _, s := range doc.sources {
		if _, ok := doc.content[s]; !ok {
			continue
		}
		if n := countLeadingUps(normalizeKeepDots(s)); n > maxUp {
			maxUp = n
		}
	}
	return maxUp
}

// baseAnchor = out/.anchor ; subAnchor = baseAnchor/level/... (depth)
func buildAnchors(outDir string, depth int) (string, string) {
	base := filepath.Join(outDir, ".anchor")
	sub := base
	for i := 0; i < depth; i++ {
		sub = filepath.Join(sub, "level")
	}
	return base, sub
}

// joins on subAnchor, blocks anything leaving baseAnchor, returns the path
// relative to outDir and the joined one
func resolveUnderAnchor(outDir, baseAnchor, subAnchor, normKeep string) (string, string, error) {
	clean := filepath.Join(subAnchor, filepath.FromSlash(normKeep))
	if err := mustBeUnder(baseAnchor, clean); err != nil {
		return "", "", err
	}
	relFromBase, err := filepath.Rel(baseAnchor, clean)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrPathEscape, err)
	}
	relFromBase = sanitizeSegments(relFromBase)
	if relFromBase == "" || relFromBase == "." {
		relFromBase = "unnamed"
	}
	return relFromBase, filepath.Join(outDir, relFromBase), nil
}

// keeps leading ../, strips URL schemes, absolute roots and drive letters
func normalizeKeepDots(p string) string {
	p = strings.TrimSpace(p)
	for _, pref := range []string{"webpack:///", "webpack://", "file:///", "file://", "vscode://"} {
		if strings.HasPrefix(p, pref) {
			p = strings.TrimPrefix(p, pref)
			break
		}
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	if len(p) >= 2 && p[1] == ':' {
		p = strings.TrimLeft(p[2:], "/")
	}
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

func countLeadingUps(p string) int {
	n := 0
	for strings.HasPrefix(p, "../") {
		p = p[3:]
		n++
	}
	return n
}

// blocks anything that would leave base
func mustBeUnder(base, target string) error {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPathEscape, err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPathEscape, err)
	}
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPathEscape, err)
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == ".." {
			return ErrPathEscape
		}
	}
	return nil
}

// realPath resolves symlinks in the longest existing prefix of p and appends
// the part that does not exist yet. A dangling link fails.
func realPath(p string) (string, error) {
	p, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	var rest []string
	for {
		// ENOENT, or ENOTDIR below a regular file: the write reports those
		if _, err := os.Lstat(p); err == nil {
			break
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor: %w", fs.ErrNotExist)
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{resolved}, rest...)...), nil
}

// mustStayUnder is mustBeUnder after following the symlinks already on disk.
// realRoot must come from realPath.
func mustStayUnder(realRoot, target string) error {
	resolved, err := realPath(target)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPathEscape, err)
	}
	return mustBeUnder(realRoot, resolved)
}

// cleans every segment (odd characters, empty -> "unnamed")
func sanitizeSegments(p string) string {
	parts := strings.Split(filepath.ToSlash(p), "/")
	out := make([]string, 0, len(parts))
	for _, seg := range parts {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." || seg == ".." {
			seg = "unnamed"
		}
		out = append(out, replaceWeird(seg))
	}
	return filepath.Join(out...)
}

var weirdReplacer = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", "\"", "_", "|", "_", "?", "_", "*", "_", "\x00", "_",
)

func replaceWeird(s string) string {
	return weirdReplacer.Replace(s)
}

// ---------- Content transforms ----------

func beautifyBasic(s string) string {
	r := strings.NewReplacer(";", ";\n", "{", "{\n", "}", "}\n")
	s = r.Replace(s)
	var buf bytes.Buffer
	prevBlank := false
	for _, ln := range strings.Split(s, "\n") {
		line := strings.TrimRight(ln, " \t")
		if line == "" {
			if prevBlank {
				continue
			}
			prevBlank = true
		} else {
			prevBlank = false
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.String()
}

func normalizeEOL(s, mode string) string {
	switch strings.ToLower(mode) {
	case "unix":
		s = strings.ReplaceAll(s, "\r\n", "\n")
		s = strings.ReplaceAll(s, "\r", "\n")
	case "dos", "windows":
		s = strings.ReplaceAll(s, "\r\n", "\n")
		s = strings.ReplaceAll(s, "\r", "\n")
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	return s
}

// ValidEOL reports whether mode is accepted by the eol option.
func ValidEOL(mode string) bool {
	switch strings.ToLower(mode) {
	case "", "unix", "dos", "windows":
		return true
	}
	return false
}

func joinMaybe(root, p string) string {
	if strings.TrimSpace(root) == "" {
		return p
	}
	return strings.TrimRight(root, "/\\") + "/" + strings.TrimLeft(p, "/\\")
}
