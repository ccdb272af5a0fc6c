// Package rpclog is the leveled logger used throughout the rpc module. It
// mirrors the shape of the teacher's own log package (a package-level
// default logger, Debugf/Infof/Warnf/Errorf, SetLevel) but is backed by
// logrus instead of a bare *log.Logger, matching the structured-logging
// dependency already present elsewhere in the retrieval pack.
package rpclog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	std.SetLevel(logrus.InfoLevel)
}

// SetLevel adjusts the package-level default logger's verbosity.
func SetLevel(level logrus.Level) { std.SetLevel(level) }

// SetOutput redirects the default logger's output.
func SetOutput(w interface{ Write([]byte) (int, error) }) { std.SetOutput(w) }

func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { std.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { std.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }

// WithField returns a logrus.Entry for structured call sites that want to
// attach fields (e.g. endpoint, tag) instead of formatting them inline.
func WithField(key string, value interface{}) *logrus.Entry {
	return std.WithField(key, value)
}
