package waclient

import (
	"fmt"
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"

	"zapfilter/platform/logger"
)

// waLogger bridges whatsmeow logging into the structured logger.
// whatsmeow is chatty, so it carries its own level threshold
// independent of the application log level.
type waLogger struct {
	log    *logger.Logger
	module string
	min    int
}

var waLogLevels = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

func newWALogger(log *logger.Logger, level string) waLog.Logger {
	min, ok := waLogLevels[strings.ToLower(level)]
	if !ok {
		min = waLogLevels["warn"]
	}
	return &waLogger{log: log, module: "whatsmeow", min: min}
}

func (w *waLogger) Errorf(msg string, args ...interface{}) {
	if w.min > waLogLevels["error"] {
		return
	}
	w.log.ErrorWithFields(fmt.Sprintf(msg, args...), w.fields())
}

func (w *waLogger) Warnf(msg string, args ...interface{}) {
	if w.min > waLogLevels["warn"] {
		return
	}
	w.log.WarnWithFields(fmt.Sprintf(msg, args...), w.fields())
}

func (w *waLogger) Infof(msg string, args ...interface{}) {
	if w.min > waLogLevels["info"] {
		return
	}
	w.log.InfoWithFields(fmt.Sprintf(msg, args...), w.fields())
}

func (w *waLogger) Debugf(msg string, args ...interface{}) {
	if w.min > waLogLevels["debug"] {
		return
	}
	w.log.DebugWithFields(fmt.Sprintf(msg, args...), w.fields())
}

func (w *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{
		log:    w.log,
		module: fmt.Sprintf("%s.%s", w.module, module),
		min:    w.min,
	}
}

func (w *waLogger) fields() map[string]interface{} {
	return map[string]interface{}{"module": w.module}
}
