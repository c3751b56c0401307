// Package smartset is a client for the Wolf SmartSet portal REST API.
//
// Client lists the systems on the account, flattens a gateway's GUI
// description into a parameter catalog, reads live values and writes
// parameter values. Every request carries a bearer token from a
// TokenSource; a 401 answer invalidates the token and the request is
// retried once.
//
// All failures wrap ErrRequestFailed. Non-2xx answers are *HTTPError.
package smartset
