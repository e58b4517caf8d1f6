// Package logging builds the component loggers used across the client.
//
// Loggers follow the [component] prefix convention. In daemon mode, logs
// additionally go to a size-rotated file so long-running instances don't
// fill the disk.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger with the given component prefix writing to stderr.
//
// Example:
//
//	logger := logging.New("engine")
//	logger.Printf("replay pass complete")
func New(component string) *log.Logger {
	return log.New(os.Stderr, "["+component+"] ", log.LstdFlags)
}

// NewRotating returns a logger writing to both stderr and a rotated file.
// If path is empty it behaves like New.
func NewRotating(component, path string) *log.Logger {
	if path == "" {
		return New(component)
	}

	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}

	return log.New(io.MultiWriter(os.Stderr, sink), "["+component+"] ", log.LstdFlags)
}
