// Package resend implements the Resend email API as a core.EmailProvider and
// describes how Resend signs its delivery webhooks.
package resend
