package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	defaultLogger = log.New(os.Stderr, "", log.LstdFlags)
	minLevel      = INFO
)

func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}

func SetFlags(flag int) {
	defaultLogger.SetFlags(flag)
}

// SetLevel suppresses all messages below the given level.
func SetLevel(level LogLevel) {
	minLevel = level
}

func formatMessage(level LogLevel, format string, args ...interface{}) string {
	levelStr := ""
	switch level {
	case DEBUG:
		levelStr = "DEBUG"
	case INFO:
		levelStr = "INFO"
	case WARN:
		levelStr = "WARN"
	case ERROR:
		levelStr = "ERROR"
	}

	msg := fmt.Sprintf(format, args...)
	return fmt.Sprintf("[%s] [ZERODEPLOY] %s", levelStr, msg)
}

func logAt(level LogLevel, format string, args ...interface{}) {
	if level < minLevel {
		return
	}
	defaultLogger.Println(formatMessage(level, format, args...))
}

func Debug(format string, args ...interface{}) {
	logAt(DEBUG, format, args...)
}

func Info(format string, args ...interface{}) {
	logAt(INFO, format, args...)
}

func Warn(format string, args ...interface{}) {
	logAt(WARN, format, args...)
}

func Error(format string, args ...interface{}) {
	logAt(ERROR, format, args...)
}
