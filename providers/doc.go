// Package providers contains built-in email provider implementations.
package providers
