// SPDX-License-Identifier: LGPL-3.0-or-later
// Author: Michel Prunet - Safe Pic Technologies
package tsmap

import (
	"context"
	"os"

	"tsmap-recover.safepic.fr/logger"
)

// Convert loads the source map at mapPath and writes its embedded sources
// under outRoot. Read and parse failures abort before anything is written
// and return a nil Result; otherwise see Materialize.
func Convert(ctx context.Context, mapPath, outRoot string, opts Options) (*Result, error) {
	doc, err := Load(mapPath)
	if err != nil {
		return nil, err
	}
	logger.Info("%s: %d sources", mapPath, len(doc.sources))
	if err := os.MkdirAll(outRoot, 0755); err != nil {
		logger.Warn("create output root %s: %v", outRoot, err)
	}
	return Materialize(ctx, doc, outRoot, opts)
}
