// SPDX-License-Identifier: LGPL-3.0-or-later
// Author: Michel Prunet - Safe Pic Technologies
package tsmap

// sourceMap is the on-disk shape of a v3 source map. Index maps carry
// Sections instead of Sources.
type sourceMap struct {
	Version        int       `json:"version"`
	File           string    `json:"file"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent"`
	SourceRoot     string    `json:"sourceRoot"`
	Sections       []section `json:"sections"`
}

type section struct {
	Offset struct {
		Line   int `json:"line"`
		Column int `json:"column"`
	} `json:"offset"`
	URL string     `json:"url"`
	Map *sourceMap `json:"map"`
}

// Document is a decoded source map: the ordered source identifiers and a
// lookup of their embedded content. It is immutable once loaded.
type Document struct {
	version int
	file    string
	sources []string
	content map[string]string
}

// Sources returns the logical source identifiers in map order, sourceRoot
// applied. Duplicates are kept.
func (d *Document) Sources() []string {
	out := make([]string, len(d.sources))
	copy(out, d.sources)
	return out
}

// ContentFor returns the embedded content of id. The boolean is false when
// the map does not embed it.
func (d *Document) ContentFor(id string) (string, bool) {
	c, ok := d.content[id]
	return c, ok
}

func (d *Document) File() string { return d.file }

func (d *Document) Version() int { return d.version }

// MaterializedFile is one source written to disk.
type MaterializedFile struct {
	Source string
	Path   string
	Size   int
}

// Result summarises a materialize pass.
type Result struct {
	Written  int
	Files    []MaterializedFile
	Skipped  []string
	Failures []*SourceError
}
