// Package device models a Wolf heating system as seen through SmartSet:
// the systems on the account, the parameter catalog of the first system,
// and live values folded into a Status snapshot.
//
// Discovery is expensive, so the SystemContext is cached in a JSON file
// with an expiry (ContextCache). Resolve and BuildStatus are pure
// functions over the catalog.
package device
