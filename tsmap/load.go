// SPDX-License-Identifier: LGPL-3.0-or-later
// Author: Michel Prunet - Safe Pic Technologies
package tsmap

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"tsmap-recover.safepic.fr/logger"
)

var reSourceMapInline = regexp.MustCompile(`(?m)//[#@]\s*sourceMappingURL=data:application/json(?:;charset=[^;,]+)?;base64,([A-Za-z0-9+/=]+)`)

// Load reads and decodes the source map at path.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	logger.Debug("read %d bytes from %s", len(raw), path)
	return LoadBytes(raw)
}

// LoadBytes decodes a source map held in memory. A JavaScript bundle with an
// inline base64 map is accepted too.
func LoadBytes(raw []byte) (*Document, error) {
	raw = stripXSSI(raw)

	if !json.Valid(raw) {
		m := reSourceMapInline.FindSubmatch(raw)
		if m == nil {
			return nil, fmt.Errorf("%w: not valid JSON", ErrParse)
		}
		data, err := base64.StdEncoding.DecodeString(string(m[1]))
		if err != nil {
			return nil, fmt.Errorf("%w: inline map: %w", ErrParse, err)
		}
		logger.Debug("using inline source map (%d bytes)", len(data))
		raw = stripXSSI(data)
	}

	var sm sourceMap
	if err := json.Unmarshal(raw, &sm); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if sm.Sources == nil && sm.Sections == nil {
		return nil, fmt.Errorf("%w: no 'sources' in source map", ErrParse)
	}

	doc := &Document{
		version: sm.Version,
		file:    sm.File,
		content: make(map[string]string),
	}
	seen := make(map[string]bool)
	flatten(doc, seen, &sm, 0)
	return doc, nil
}

const maxSectionDepth = 8

// flatten appends the sources of sm (and of nested index map sections) to
// doc. The first occurrence of an id owns its content.
func flatten(doc *Document, seen map[string]bool, sm *sourceMap, depth int) {
	for i, s := range sm.Sources {
		id := joinMaybe(sm.SourceRoot, s)
		doc.sources = append(doc.sources, id)
		if seen[id] {
			continue
		}
		seen[id] = true
		if i < len(sm.SourcesContent) && sm.SourcesContent[i] != nil && *sm.SourcesContent[i] != "" {
			doc.content[id] = *sm.SourcesContent[i]
		}
	}
	if depth >= maxSectionDepth {
		return
	}
	for _, sec := range sm.Sections {
		if sec.Map == nil {
			// url-only sections point at maps we do not fetch
			logger.Debug("skipping section without embedded map: %q", sec.URL)
			continue
		}
		flatten(doc, seen, sec.Map, depth+1)
	}
}

// stripXSSI drops the ")]}'" guard line some servers prepend to maps.
func stripXSSI(raw []byte) []byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n\ufeff")
	if bytes.HasPrefix(trimmed, []byte(")]}")) {
		if i := bytes.IndexByte(trimmed, '\n'); i >= 0 {
			return trimmed[i+1:]
		}
		return nil
	}
	return raw
}
