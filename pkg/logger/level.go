package logger

import (
	"fmt"
	"strings"
)

type LogLevel int32

const (
	DEBUG LogLevel = iota
	TRACE
	WARN
	ERROR
	// The fatal will be printed to logfile and a crash report will be
	// created. The program exits after printing it.
	FATAL
)

type AnsiColor string

const (
	AnsiReset  AnsiColor = "\033[0m"
	AnsiRed    AnsiColor = "\033[31m"
	AnsiGreen  AnsiColor = "\033[32m"
	AnsiYellow AnsiColor = "\033[33m"
	AnsiBlue   AnsiColor = "\033[34m"
	AnsiPurple AnsiColor = "\033[35m"
)

func (level LogLevel) String() string {
	switch level {
	case DEBUG:
		return "[DEBUG]"
	case TRACE:
		return "[TRACE]"
	case WARN:
		return "[WARNING]"
	case ERROR:
		return "[ERROR]"
	case FATAL:
		return "[FATAL]"
	}
	return fmt.Sprintf("[LEVEL %d]", int32(level))
}

func (level LogLevel) Color() AnsiColor {
	switch level {
	case DEBUG:
		return AnsiBlue
	case TRACE:
		return AnsiGreen
	case WARN:
		return AnsiYellow
	case ERROR:
		return AnsiRed
	case FATAL:
		return AnsiPurple
	}
	return AnsiReset
}

// ParseLevel accepts the names used in the configuration file.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG, nil
	case "", "trace", "info":
		return TRACE, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	}
	return TRACE, fmt.Errorf("unknown log level %q", name)
}

type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}
