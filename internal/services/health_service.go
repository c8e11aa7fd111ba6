package services

import (
	"context"
	"log/slog"
	"time"

	"ncbproc/internal/ruleset"
	"ncbproc/pkg/contracts"
)

// HealthService provides health check functionality
type HealthService struct {
	version    string
	processing *ProcessingService
	startTime  time.Time
	logger     *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
	Uptime    float64         `json:"uptime_seconds"`
	Ruleset   string          `json:"ruleset,omitempty"`
	Rulesets  []RulesetHealth `json:"rulesets"`
}

// RulesetHealth reports whether a built-in ruleset loads.
type RulesetHealth struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
}

// NewHealthService creates a new health service. processing may be nil, in
// which case the configured ruleset is not reported.
func NewHealthService(version string, processing *ProcessingService, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:    version,
		processing: processing,
		startTime:  time.Now(),
		logger:     logger.With(slog.String("component", "health_service")),
	}
}

// HealthCheck returns overall health status. The service is degraded when
// a built-in ruleset or the configured ruleset fails to load.
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
		Uptime:    time.Since(hs.startTime).Seconds(),
		Rulesets:  Rulesets(),
	}

	for _, rs := range status.Rulesets {
		if rs.Status != "available" {
			status.Status = "degraded"
		}
	}

	if hs.processing != nil {
		rs, err := hs.processing.Ruleset("")
		if err != nil {
			status.Status = "degraded"
		} else {
			status.Ruleset = rs.Name
		}
	}

	if status.Status != "ok" {
		hs.logger.WarnContext(ctx, "health check degraded", slog.String("status", status.Status))
	}
	return status
}

// Rulesets loads every built-in ruleset and reports its state.
func Rulesets() []RulesetHealth {
	names := ruleset.Names()
	out := make([]RulesetHealth, 0, len(names))
	for _, name := range names {
		rs, err := ruleset.Builtin(name)
		if err != nil {
			out = append(out, RulesetHealth{Name: name, Status: "unavailable", Message: err.Error()})
			continue
		}
		out = append(out, RulesetHealth{Name: name, Description: rs.Description, Status: "available"})
	}
	return out
}

// VersionInfo is the build information plus process uptime.
type VersionInfo struct {
	contracts.VersionInfo
	StartTime time.Time `json:"start_time"`
	Uptime    float64   `json:"uptime_seconds"`
	Ruleset   string    `json:"default_ruleset"`
}

// Version returns version information
func (hs *HealthService) Version() VersionInfo {
	info := VersionInfo{
		VersionInfo: contracts.GetVersionInfo(),
		StartTime:   hs.startTime,
		Uptime:      time.Since(hs.startTime).Seconds(),
		Ruleset:     ruleset.DefaultName,
	}
	if hs.version != "" {
		info.Version = hs.version
	}
	if hs.processing != nil {
		if rs, err := hs.processing.Ruleset(""); err == nil {
			info.Ruleset = rs.Name
		}
	}
	return info
}
