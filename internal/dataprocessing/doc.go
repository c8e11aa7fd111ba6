// Package dataprocessing turns an insurance transaction workbook into the
// New Business, Reinstatement and Cancellation output tables.
//
// # Architecture
//
// A run flows one way through four components:
//
// 1. Loader: selects the data sheet and promotes the header row
// 2. Locator: resolves ruleset roles to columns by name, token, content or position
// 3. Classifier: coerces fee cells, buckets rows and applies the sign rules
// 4. Composer: projects kept rows onto each bucket's output layout
//
// # Usage
//
//	rs, _ := ruleset.Builtin("karen-3.0")
//	p, err := dataprocessing.NewPipeline(rs, slog.Default())
//	if err != nil {
//	    return err
//	}
//	result, err := p.Run(ctx, file, "export.xlsx")
//
// Sheet and header problems abort the run with a *ProcessingError; row level
// issues are returned as warnings on the Result.
package dataprocessing
