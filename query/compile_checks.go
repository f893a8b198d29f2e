package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/kdevda/go-mailflow/core"
)

var (
	_ gocmd.Querier[GetMessageMessage, core.Message]         = (*GetMessageQuery)(nil)
	_ gocmd.Querier[GetConfigEntryMessage, ConfigEntryView] = (*GetConfigEntryQuery)(nil)
)
