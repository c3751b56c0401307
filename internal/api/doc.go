// Package api implements the read-only HTTP status API of the Wolf bridge.
//
// Endpoints under /api/v1:
//   - GET /health: liveness, version and broker connectivity
//   - GET /status: the latest status, shaped like the MQTT status message
//   - GET /status/{parent}: one group of the latest status
//   - GET /parameters: the parameter catalog
//   - GET /writes: the write journal, when a database is configured
//
// Every other path is handed to the optional dashboard handler.
//
// # Graceful Degradation
//
// The server runs without MQTT or a database. /status answers 404 until
// the first refresh cycle completes.
package api
