// Package transport executes bounded HTTP calls on behalf of providers.
package transport
