// Package httpapi exposes mailflow over HTTP: provider webhooks, a send
// endpoint, message lookup, health and metrics.
package httpapi
