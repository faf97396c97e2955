// Package api is the front end's HTTP surface: the health probe, the
// /api/ reverse proxy to the backend and the static web root.
package api
