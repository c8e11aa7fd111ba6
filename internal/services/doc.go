// Package services implements the application layer between the transport
// surfaces (HTTP handlers and the CLI) and the processing pipeline.
//
// ProcessingService resolves the ruleset of a request, runs the pipeline,
// records run metrics and exports the result tables. Every run carries a
// run ID that appears in its logs, spans and results.
//
// HealthService reports the version, uptime and ruleset availability.
//
// Services take a *slog.Logger through their constructors and tag it with
// a component attribute:
//
//	svc, err := services.NewProcessingService(cfg.Processing, providers.Metrics, logger)
//	if err != nil {
//	    return err
//	}
//	run, err := svc.Process(ctx, upload, "export.xlsx", "")
package services
