// Package http implements the HTTP handlers of the ncbproc service. Handlers
// stay thin: they parse the request, call the services layer and render the
// result, leaving every failure to the RFC 7807 error handler.
//
// # Routes
//
//	GET  /api/health              service and ruleset health
//	GET  /api/version             build information
//	GET  /api/v1/rulesets         built-in rulesets
//	GET  /api/v1/rulesets/{name}  one ruleset as JSON
//	POST /api/v1/process          process an uploaded workbook
//	POST /api/v1/inspect          describe an uploaded workbook
//	GET  /metrics                 Prometheus exposition
//
// # Uploads
//
// Upload routes take a multipart body with the workbook in the "file" field.
// POST /api/v1/process also reads these form fields:
//
//	ruleset  built-in ruleset name, defaults to the configured one
//	format   json (default) or xlsx
//	bucket   restrict the response to one output table
//
// With format=xlsx the response is the workbook as an attachment. Otherwise
// it is a ProcessSummary.
package http
