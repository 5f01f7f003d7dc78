// Package logging gates the standard library logger behind a level read
// from LOG_LEVEL so operators can turn down noisy subsystems without
// recompiling. Every call site still writes bracketed-tag lines
// (e.g. "[consensus] ...") the same way the rest of the tree does.
package logging

import (
	"log"
	"os"
	"strings"
)

// Level orders verbosity from least to most chatty.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func parseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var current = parseLevel(os.Getenv("LOG_LEVEL"))

// SetLevel overrides the active level.
func SetLevel(l Level) { current = l }

// SetLevelFromString parses s (debug/info/warn/error) and applies it.
// cmd/qnetd calls it with the config file's log_level after loading config,
// which replaces the level read from LOG_LEVEL.
func SetLevelFromString(s string) { current = parseLevel(s) }

// Debugf logs at LevelDebug.
func Debugf(format string, args ...any) {
	if current >= LevelDebug {
		log.Printf(format, args...)
	}
}

// Infof logs at LevelInfo.
func Infof(format string, args ...any) {
	if current >= LevelInfo {
		log.Printf(format, args...)
	}
}

// Warnf logs at LevelWarn.
func Warnf(format string, args ...any) {
	if current >= LevelWarn {
		log.Printf(format, args...)
	}
}

// Errorf always logs; errors are never suppressed by LOG_LEVEL.
func Errorf(format string, args ...any) {
	log.Printf(format, args...)
}
