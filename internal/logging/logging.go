// Package logging configures structured logging for fieldsync.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	global *logrus.Logger
	once   sync.Once
)

// Init initializes the global logger. level is a logrus level name
// ("debug", "info", ...); file, when non-empty, adds a size-rotated
// log file next to stderr output.
func Init(level, file string) {
	once.Do(func() {
		global = build(level, file)
	})
}

// Get returns the global logger, initializing it with defaults when
// Init was never called.
func Get() *logrus.Logger {
	if global == nil {
		Init("info", "")
	}
	return global
}

func build(level, file string) *logrus.Logger {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.JSONFormatter{})

	if file != "" {
		rotated := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		log.SetOutput(io.MultiWriter(os.Stderr, rotated))
	} else {
		log.SetOutput(os.Stderr)
	}

	return log
}
