// Package panel serves the status dashboard as an embedded asset.
//
// The dashboard is a single static page that polls /api/v1/status and
// /api/v1/writes and renders the parameter groups as tables. It is embedded
// into the binary with go:embed, so the API server needs no files at
// runtime. A directory can be given instead to iterate on the page without
// rebuilding.
//
// Unknown paths fall back to index.html. Everything is served with
// no-cache so a reload always picks up a new build.
package panel
