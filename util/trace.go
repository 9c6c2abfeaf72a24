package util

import (
	"time"

	"go.uber.org/zap"
)

// Trace 记录一段操作的耗时，用法：defer util.Trace("remove background")()
func Trace(msg string) func() {
	start := time.Now()
	Logger.Debug("enter " + msg)
	return func() {
		Logger.Info(msg, zap.Duration("cost", time.Since(start)))
	}
}
