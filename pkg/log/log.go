// Copyright The Dune Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level is the log message severity level below which we suppress messages.
type Level int32

const (
	// LevelDebug corresponds to debug messages.
	LevelDebug Level = iota
	// LevelInfo corresponds to informational messages.
	LevelInfo
	// LevelWarn corresponds to warning messages.
	LevelWarn
	// LevelError corresponds to error messages.
	LevelError
)

// Logger is the interface for producing log messages for a source.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Fatal(format string, args ...interface{})

	EnableDebug(bool) bool
	DebugEnabled() bool
	Source() string
}

// Backend is an entity that can emit formatted log messages.
type Backend interface {
	Name() string
	Log(level Level, source, message string)
}

// logger is our Logger implementation.
type logger struct {
	source string
	debug  bool
}

// logging is our runtime state.
type logging struct {
	sync.RWMutex
	level   Level
	active  Backend
	loggers map[string]*logger
	debug   map[string]bool
}

var log = &logging{
	level:   LevelInfo,
	active:  &fmtBackend{},
	loggers: make(map[string]*logger),
	debug:   make(map[string]bool),
}

// NewLogger creates a logger for the given source, reusing an existing one.
func NewLogger(source string) Logger {
	source = strings.Trim(source, "[] ")

	log.Lock()
	defer log.Unlock()

	if l, ok := log.loggers[source]; ok {
		return l
	}
	l := &logger{
		source: source,
		debug:  log.debug[source] || log.debug["*"],
	}
	log.loggers[source] = l
	return l
}

// Get is an alias for NewLogger.
func Get(source string) Logger {
	return NewLogger(source)
}

// SetLevel sets the lowest severity level that is not suppressed.
func SetLevel(level Level) {
	log.Lock()
	defer log.Unlock()
	log.level = level
}

// SetBackend activates the given backend for all loggers.
func SetBackend(b Backend) {
	log.Lock()
	defer log.Unlock()
	log.active = b
}

// EnableDebug turns on debug messages for the given sources ("*" for all).
func EnableDebug(sources ...string) {
	log.Lock()
	defer log.Unlock()
	for _, source := range sources {
		log.debug[source] = true
		if source == "*" {
			for _, l := range log.loggers {
				l.debug = true
			}
		} else if l, ok := log.loggers[source]; ok {
			l.debug = true
		}
	}
}

func (l *logger) emit(level Level, format string, args ...interface{}) {
	log.RLock()
	backend, min := log.active, log.level
	log.RUnlock()

	if level < min && !(level == LevelDebug && l.debug) {
		return
	}
	backend.Log(level, l.source, fmt.Sprintf(format, args...))
}

// Debug emits a debug message if debugging is enabled for the source.
func (l *logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.emit(LevelDebug, format, args...)
}

// Info emits an informational message.
func (l *logger) Info(format string, args ...interface{}) {
	l.emit(LevelInfo, format, args...)
}

// Warn emits a warning message.
func (l *logger) Warn(format string, args ...interface{}) {
	l.emit(LevelWarn, format, args...)
}

// Error emits an error message.
func (l *logger) Error(format string, args ...interface{}) {
	l.emit(LevelError, format, args...)
}

// Fatal emits an error message and exits.
func (l *logger) Fatal(format string, args ...interface{}) {
	l.emit(LevelError, format, args...)
	os.Exit(1)
}

// EnableDebug controls debugging for the source, returning the previous state.
func (l *logger) EnableDebug(enable bool) bool {
	previous := l.debug
	l.debug = enable
	return previous
}

// DebugEnabled returns the debugging state of the source.
func (l *logger) DebugEnabled() bool {
	return l.debug
}

// Source returns the source name of the logger.
func (l *logger) Source() string {
	return l.source
}

//
// fallback fmt backend, using fmt.Println
//

type fmtBackend struct{}

var _ Backend = &fmtBackend{}

var levelTag = map[Level]string{
	LevelDebug: "D:",
	LevelInfo:  "I:",
	LevelWarn:  "W:",
	LevelError: "E:",
}

func (f *fmtBackend) Name() string {
	return "fmt"
}

func (f *fmtBackend) Log(level Level, source, message string) {
	fmt.Println(levelTag[level] + " [" + source + "] " + message)
}

// Default logger, named after the running binary.
var defLogger = NewLogger(filepath.Base(filepath.Clean(os.Args[0])))

// Default returns the default logger.
func Default() Logger {
	return defLogger
}

// Debug emits a debug message with the default source.
func Debug(format string, args ...interface{}) {
	defLogger.Debug(format, args...)
}

// Info emits an info message with the default source.
func Info(format string, args ...interface{}) {
	defLogger.Info(format, args...)
}

// Warn emits a warning message with the default source.
func Warn(format string, args ...interface{}) {
	defLogger.Warn(format, args...)
}

// Error emits an error message with the default source.
func Error(format string, args ...interface{}) {
	defLogger.Error(format, args...)
}

// Fatal emits an error message with the default source and exits.
func Fatal(format string, args ...interface{}) {
	defLogger.Fatal(format, args...)
}
