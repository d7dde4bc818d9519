package config

import (
	"time"
)

type WebConfig struct {
	Listen string
	// Base URL of the telemetry collaborator that serves ring success rates.
	TelemetryAddr string
	// Timeout applied to every call that crosses the service boundary.
	CollaboratorTimeout time.Duration
}

func NewWebConfig(listen, telemetryAddr string) WebConfig {
	return WebConfig{
		Listen:              listen,
		TelemetryAddr:       telemetryAddr,
		CollaboratorTimeout: 5 * time.Second,
	}
}
