// Package core contains the mailflow domain entities, store contracts, and
// orchestration: config resolution, outbound dispatch, and delivery event
// processing. Provider and transport adapters depend on this package; core
// does not depend on them.
package core
