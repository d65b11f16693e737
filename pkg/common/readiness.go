package common

import "github.com/certusone/wormhole/custody/pkg/readiness"

const (
	ReadinessDatabase readiness.Component = "database"
	ReadinessAPI      readiness.Component = "api"
	ReadinessAudit    readiness.Component = "audit"
)
