// Package webhooks verifies and acknowledges provider delivery callbacks.
//
// Acknowledgement policy: only an invalid signature or a malformed body is
// rejected. Unmatched messages and internal processing faults are still
// acknowledged with 200 so providers do not retry against a transient fault.
package webhooks
