// Package app wires the ncbproc HTTP service together: it builds the
// logger and OpenTelemetry providers from configuration, creates the
// services, mounts the handlers on a chi router and owns the server
// lifecycle.
//
// Usage:
//
//	a, err := app.New(cfg, app.Options{})
//	if err != nil {
//	    return err
//	}
//	return a.Run(ctx)
//
// Run returns once ctx is cancelled and in-flight requests have finished or
// the shutdown timeout has passed.
package app
