package sqlstore

import "github.com/kdevda/go-mailflow/core"

var (
	_ core.MessageStore      = (*MessageStore)(nil)
	_ core.ConfigEntryStore  = (*ConfigEntryStore)(nil)
	_ core.ConfigEntryWriter = (*ConfigEntryStore)(nil)
	_ core.ConfigEntryStore  = (*CachedConfigEntryStore)(nil)
	_ core.ConfigEntryWriter = (*CachedConfigEntryStore)(nil)
)
