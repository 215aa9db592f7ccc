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

// Package log provides a small, source-tagged, level-gated logger with a
// pluggable output Backend. Every package in coresched gets its own named
// logger (log.Get("selector"), log.Get("portmgr"), ...); each message
// reaches the Backend tagged with its source name.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level is the log message severity.
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

var levelNames = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

func (l Level) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return "info"
}

// Logger is the interface for producing log messages for/from a particular source.
type Logger interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Fatal(format string, args ...interface{})
	Panic(format string, args ...interface{})

	DebugEnabled() bool
	Debug(format string, args ...interface{})
	Block(fn func(string, ...interface{}), prefix, format string, args ...interface{})
	DebugBlock(prefix, format string, args ...interface{})
	InfoBlock(prefix, format string, args ...interface{})
	WarnBlock(prefix, format string, args ...interface{})
	ErrorBlock(prefix, format string, args ...interface{})

	Source() string
}

// Backend is an entity that can emit already-formatted log messages.
type Backend interface {
	Name() string
	Enabled(Level) bool
	Log(level Level, source, message string)
}

type registry struct {
	sync.Mutex
	backend  Backend
	loggers  map[string]*logger
	level    Level
	debug    map[string]bool // "*" is the wildcard entry
	srcalign int
}

var reg = &registry{
	loggers: make(map[string]*logger),
	level:   LevelInfo,
	debug:   map[string]bool{},
}

func init() {
	SetBackend(NewFmtBackend())
}

// SetBackend replaces the active output backend.
func SetBackend(b Backend) {
	reg.Lock()
	defer reg.Unlock()
	reg.backend = b
}

// SetLevel sets the package-wide minimum severity passed through to the backend.
func SetLevel(l Level) {
	reg.Lock()
	defer reg.Unlock()
	reg.level = l
}

// EnableDebug turns on (or off) debug messages for the named source, or
// for every source when name is "" or "*".
func EnableDebug(name string, enable bool) {
	reg.Lock()
	defer reg.Unlock()
	if name == "" {
		name = "*"
	}
	reg.debug[name] = enable
}

func (r *registry) debugEnabled(source string) bool {
	r.Lock()
	defer r.Unlock()
	if v, ok := r.debug[source]; ok {
		return v
	}
	return r.debug["*"]
}

// logger implements Logger for one named source.
type logger struct {
	source string
}

// Get returns the (possibly cached) logger for the given source.
func Get(source string) Logger {
	source = strings.Trim(source, "[] ")

	reg.Lock()
	defer reg.Unlock()

	if l, ok := reg.loggers[source]; ok {
		return l
	}
	if len(source) > reg.srcalign {
		reg.srcalign = len(source)
	}
	l := &logger{source: source}
	reg.loggers[source] = l
	return l
}

func (l *logger) Source() string { return l.source }

func (l *logger) prefix() string {
	reg.Lock()
	width := reg.srcalign
	reg.Unlock()

	suf := (width - len(l.source)) / 2
	pre := width - (len(l.source) + suf)
	return "[" + fmt.Sprintf("%-*s", pre, "") + l.source + fmt.Sprintf("%*s", suf, "") + "]"
}

func (l *logger) emit(level Level, format string, args ...interface{}) {
	reg.Lock()
	backend := reg.backend
	allowed := level >= reg.level
	reg.Unlock()

	if backend == nil || (!allowed && !(level == LevelDebug && l.DebugEnabled())) {
		return
	}
	if !backend.Enabled(level) {
		return
	}
	backend.Log(level, l.source, fmt.Sprintf(format, args...))
}

func (l *logger) Info(format string, args ...interface{})  { l.emit(LevelInfo, format, args...) }
func (l *logger) Warn(format string, args ...interface{})  { l.emit(LevelWarn, format, args...) }
func (l *logger) Error(format string, args ...interface{}) { l.emit(LevelError, format, args...) }

func (l *logger) Fatal(format string, args ...interface{}) {
	l.emit(LevelError, format, args...)
	os.Exit(1)
}

func (l *logger) Panic(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.emit(LevelError, "%s", msg)
	panic(msg)
}

func (l *logger) DebugEnabled() bool {
	return reg.debugEnabled(l.source)
}

func (l *logger) Debug(format string, args ...interface{}) {
	if !l.DebugEnabled() {
		return
	}
	l.emit(LevelDebug, format, args...)
}

// Block emits a multi-line message one line at a time via fn, each line
// prefixed with prefix.
func (l *logger) Block(fn func(string, ...interface{}), prefix, format string, args ...interface{}) {
	for _, line := range strings.Split(fmt.Sprintf(format, args...), "\n") {
		fn("%s%s", prefix, line)
	}
}

func (l *logger) DebugBlock(prefix, format string, args ...interface{}) {
	if !l.DebugEnabled() {
		return
	}
	l.Block(l.Debug, prefix, format, args...)
}

func (l *logger) InfoBlock(prefix, format string, args ...interface{}) {
	l.Block(l.Info, prefix, format, args...)
}

func (l *logger) WarnBlock(prefix, format string, args ...interface{}) {
	l.Block(l.Warn, prefix, format, args...)
}

func (l *logger) ErrorBlock(prefix, format string, args ...interface{}) {
	l.Block(l.Error, prefix, format, args...)
}

// defLogger is the logger sourced from the running binary's name.
var defLogger = Get(filepath.Base(os.Args[0]))

// Default returns the default logger.
func Default() Logger { return defLogger }

// Info emits an info message with the default source.
func Info(format string, args ...interface{}) { defLogger.Info(format, args...) }

// Warn emits a warning message with the default source.
func Warn(format string, args ...interface{}) { defLogger.Warn(format, args...) }

// Error emits an error message with the default source.
func Error(format string, args ...interface{}) { defLogger.Error(format, args...) }

// Fatal emits an error message with the default source and exits.
func Fatal(format string, args ...interface{}) { defLogger.Fatal(format, args...) }

// Debug emits a debug message with the default source.
func Debug(format string, args ...interface{}) { defLogger.Debug(format, args...) }
