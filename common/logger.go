// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"log"
	"path/filepath"
	"reflect"
	"runtime"
	"time"

	"github.com/JeffreyRichter/enum/enum"
)

// LogLevel controls which messages reach the log stream. Higher values
// are more verbose; ELogLevel.None() disables logging entirely.
var ELogLevel = LogLevel(0)

type LogLevel uint8

func (LogLevel) None() LogLevel    { return LogLevel(0) }
func (LogLevel) Error() LogLevel   { return LogLevel(1) }
func (LogLevel) Warning() LogLevel { return LogLevel(2) }
func (LogLevel) Info() LogLevel    { return LogLevel(3) }
func (LogLevel) Debug() LogLevel   { return LogLevel(4) }

func (ll LogLevel) String() string {
	switch ll {
	case ELogLevel.None():
		return "NONE"
	case ELogLevel.Error():
		return "ERR"
	case ELogLevel.Warning():
		return "WARN"
	case ELogLevel.Info():
		return "INFO"
	case ELogLevel.Debug():
		return "DBG"
	default:
		return enum.StringInt(ll, reflect.TypeOf(ll))
	}
}

func (ll *LogLevel) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(ll), s, true, true)
	if err == nil {
		*ll = val.(LogLevel)
	}
	return err
}

// ILogger is implemented by anything the scan pipeline can hand a line
// of output to. The core never decides where lines end up; it only
// decides whether a given level should be logged at all.
type ILogger interface {
	ShouldLog(level LogLevel) bool
	Log(level LogLevel, msg string)
	Panic(err error)
}

type ILoggerCloser interface {
	ILogger
	CloseLog()
}

// NullLogger discards everything. Used when the CLI is run with
// --log-level none, and by tests that don't want log noise.
type NullLogger struct{}

func (NullLogger) ShouldLog(LogLevel) bool  { return false }
func (NullLogger) Log(LogLevel, string)     {}
func (NullLogger) Panic(err error)          { panic(err) }
func (NullLogger) CloseLog()                {}

const maxLogSize = 100 * 1024 * 1024

type fileLogger struct {
	minimumLevelToLog LogLevel
	file              *rotatingWriter
	logger            *log.Logger
}

// NewFileLogger opens (creating if necessary) a size-rotating log file
// under logFileFolder and returns a logger that writes lines to it at or
// below minimumLevelToLog.
func NewFileLogger(minimumLevelToLog LogLevel, logFileFolder, fileName string) (ILoggerCloser, error) {
	if minimumLevelToLog == ELogLevel.None() {
		return NullLogger{}, nil
	}

	w, err := newRotatingWriter(filepath.Join(logFileFolder, fileName+".log"), maxLogSize)
	if err != nil {
		return nil, err
	}

	flags := log.LstdFlags | log.LUTC
	logger := log.New(w, "", flags)
	logger.Println("dscan starting;", runtime.GOOS, runtime.GOARCH)
	logger.Println("Log times are in UTC. Local time is", time.Now().Format("2 Jan 2006 15:04:05"))

	return &fileLogger{
		minimumLevelToLog: minimumLevelToLog,
		file:              w,
		logger:            logger,
	}, nil
}

func (l *fileLogger) ShouldLog(level LogLevel) bool {
	if level == ELogLevel.None() {
		return false
	}
	return level <= l.minimumLevelToLog
}

func (l *fileLogger) Log(level LogLevel, msg string) {
	if l.ShouldLog(level) {
		l.logger.Println(msg)
	}
}

func (l *fileLogger) Panic(err error) {
	l.logger.Println(err) // log it; we do NOT recover, the process is meant to die here
	panic(err)
}

func (l *fileLogger) CloseLog() {
	l.logger.Println("Closing log")
	_ = l.file.Close()
}
