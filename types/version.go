// Package types defines value types shared across the URLCustomDiscs service.
package types

// Version is the canonical service version.
// Reported by the version command, the /healthz endpoint and outcome records.
const Version = "1.2.0"
