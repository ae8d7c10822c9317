// Package health serves the gateway's liveness, readiness and version
// endpoints.
//
// Liveness only reports that the process runs. Readiness runs every
// registered check (one per backend) concurrently, each bounded by the
// checker timeout, and answers 503 when fewer than the configured number
// of backends pass.
package health
