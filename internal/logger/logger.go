package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// 简单的分级日志：默认 info，可通过 SetLevel("debug") 调整。

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

var (
	std      = log.New(os.Stderr, "", log.LstdFlags)
	minLevel int32 = levelInfo
)

// SetLevel 设置最低输出级别，接受 debug/info/warn/error。
func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		atomic.StoreInt32(&minLevel, levelDebug)
	case "warn", "warning":
		atomic.StoreInt32(&minLevel, levelWarn)
	case "error":
		atomic.StoreInt32(&minLevel, levelError)
	default:
		atomic.StoreInt32(&minLevel, levelInfo)
	}
}

func output(level int32, tag, format string, args ...any) {
	if level < atomic.LoadInt32(&minLevel) {
		return
	}
	std.Output(3, tag+" "+fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...any) { output(levelDebug, "DEBUG", format, args...) }
func Infof(format string, args ...any)  { output(levelInfo, "INFO", format, args...) }
func Warnf(format string, args ...any)  { output(levelWarn, "WARN", format, args...) }
func Errorf(format string, args ...any) { output(levelError, "ERROR", format, args...) }
