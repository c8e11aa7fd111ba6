// Package config loads the ncbproc configuration.
//
// # Configuration Sources
//
// Values are layered, later sources winning:
//
//	1. Default()
//	2. A YAML file: the --config path, $NCB_CONFIG, ./ncbproc.yaml or
//	   ./config/ncbproc.yaml
//	3. Environment variables prefixed NCB_
//
// # Environment Variables
//
// Nested fields join their keys with underscores:
//
//	NCB_SERVER_PORT=8501
//	NCB_SERVER_MAX_UPLOAD_MB=50
//	NCB_LOGGING_LEVEL=debug
//	NCB_PROCESSING_RULESET=karen-2.0
//	NCB_PROCESSING_FORMAT=csv
//	NCB_TELEMETRY_TRACE_EXPORTER=stdout
//
// # Example File
//
//	server:
//	  port: 8501
//	  max_upload_mb: 50
//	logging:
//	  level: info
//	  format: json
//	processing:
//	  ruleset: karen-3.0
//	  output_dir: output
//	  timestamp: true
package config
