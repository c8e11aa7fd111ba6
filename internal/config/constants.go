package config

import "time"

// Application constants
const (
	AppName = "ncbproc"

	// EnvPrefix namespaces every environment override, e.g. NCB_SERVER_PORT.
	EnvPrefix = "NCB"

	DefaultPort           = 8501
	DefaultMaxUploadMB    = 50
	DefaultRequestTimeout = 2 * time.Minute
	DefaultRateLimit      = 5 // upload requests per second
	DefaultBurstSize      = 10

	DefaultRuleset     = "karen-3.0"
	DefaultOutputDir   = "output"
	DefaultWorkers     = 4
	DefaultMaxWarnings = 100
)

// ConfigFileLocations are searched in order when no config path is given.
var ConfigFileLocations = []string{
	"ncbproc.yaml",
	"config/ncbproc.yaml",
}
