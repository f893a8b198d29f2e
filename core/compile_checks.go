package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ MailService       = (*Service)(nil)
	_ ConfigEntryStore  = (*MemoryConfigStore)(nil)
	_ ConfigEntryWriter = (*MemoryConfigStore)(nil)
	_ MessageStore      = (*MemoryMessageStore)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
