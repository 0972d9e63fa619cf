// Package ctxutil provides context helpers shared by the CLI entry points.
package ctxutil

import "context"

// Canceled returns the context's error when it has already been canceled or
// timed out, nil otherwise. Command handlers call it on entry so a run that
// was aborted before any work started fails with the plain context error
// instead of a partially constructed engine. ctx.Err is already nil while the
// context is live, so no select is needed.
func Canceled(ctx context.Context) error {
	return ctx.Err()
}
