package app

import (
	"context"
	"strings"

	"tableflip.dev/taskpad/pkg/importer"
)

// Import parses text and creates one task per root line in listID. Each
// task succeeds or fails on its own; the error is only set when the batch
// could not start.
func (w *Workspace) Import(ctx context.Context, text, listID string) (importer.Result, error) {
	if strings.TrimSpace(text) == "" {
		return importer.Result{}, nil
	}
	resolved, err := w.resolveList(ctx, listID)
	if err != nil {
		return importer.Result{}, err
	}
	nodes := importer.Parse(text)
	w.log.Debug("import parsed", "roots", len(nodes), "list", resolved)
	return importer.Import(ctx, w, resolved, nodes), nil
}
