package gologger

import (
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// FormatOption maps a log format name to the glog handler type. "text" is an
// alias for console; anything unknown writes JSON.
func FormatOption(format string) glog.Option {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text", glog.LoggerTypeConsole:
		return glog.WithLoggerTypeConsole()
	case glog.LoggerTypePretty:
		return glog.WithLoggerTypePretty()
	default:
		return glog.WithLoggerTypeJSON()
	}
}
