/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package bplog is a small level-filtered, RFC5424-structured logger
// adapted from gravwell's ingest/log package, trimmed to what the
// forwarder core needs: leveled
// output, multiple writers, and structured-data log fields for call
// sites that want to attach a link name, bundle id, or CL name to a
// message without string formatting.
package bplog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

const defaultDepth = 3
const defaultMsgID = `bpcore`

var (
	ErrNotOpen      = errors.New("bplog: logger is not open")
	ErrInvalidLevel = errors.New("bplog: invalid log level")
)

// Logger is a mutex-guarded multi-writer leveled logger. The zero value is
// not usable; construct with New or NewFile.
type Logger struct {
	mtx      sync.Mutex
	wtrs     []io.WriteCloser
	lvl      Level
	hot      bool
	hostname string
	appname  string
}

// New wraps wtr at level INFO.
func New(wtr io.WriteCloser) *Logger {
	l := &Logger{wtrs: []io.WriteCloser{wtr}, lvl: INFO, hot: true}
	l.hostname, _ = os.Hostname()
	if args := os.Args; len(args) > 0 {
		l.appname = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}
	return l
}

// NewFile opens (creating if needed, appending if present) f as the sole
// writer of a new logger.
func NewFile(f string) (*Logger, error) {
	fout, err := os.OpenFile(f, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0660)
	if err != nil {
		return nil, err
	}
	return New(fout), nil
}

// NewDiscard returns a logger that drops everything; useful in tests.
func NewDiscard() *Logger {
	return New(discardCloser{})
}

func (l *Logger) ready() error {
	if !l.hot || len(l.wtrs) == 0 {
		return ErrNotOpen
	}
	return nil
}

// Close closes every underlying writer.
func (l *Logger) Close() (err error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err = l.ready(); err != nil {
		return err
	}
	l.hot = false
	for _, w := range l.wtrs {
		if cerr := w.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

// AddWriter fans log lines out to an additional writer, e.g. stderr in
// addition to a log file.
func (l *Logger) AddWriter(w io.WriteCloser) error {
	if w == nil {
		return errors.New("bplog: nil writer")
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err := l.ready(); err != nil {
		return err
	}
	l.wtrs = append(l.wtrs, w)
	return nil
}

func (l *Logger) SetLevel(lvl Level) error {
	if !lvl.Valid() {
		return ErrInvalidLevel
	}
	l.mtx.Lock()
	l.lvl = lvl
	l.mtx.Unlock()
	return nil
}

func (l *Logger) SetLevelString(s string) error {
	lvl, err := LevelFromString(s)
	if err != nil {
		return err
	}
	return l.SetLevel(lvl)
}

func (l *Logger) GetLevel() Level {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.lvl
}

func (l *Logger) Debugf(f string, args ...interface{}) { l.outputf(DEBUG, f, args...) }
func (l *Logger) Infof(f string, args ...interface{})  { l.outputf(INFO, f, args...) }
func (l *Logger) Warnf(f string, args ...interface{})  { l.outputf(WARN, f, args...) }
func (l *Logger) Errorf(f string, args ...interface{}) { l.outputf(ERROR, f, args...) }
func (l *Logger) Criticalf(f string, args ...interface{}) {
	l.outputf(CRITICAL, f, args...)
}

// Debug, Info, Warn, Error, Critical write structured (RFC5424 SD-PARAM)
// log entries; sds typically carry the link name, bundle id, or CL name
// of the call site, e.g. l.Info("contact up", rfc5424.SDParam{Name:
// "link", Value: name}).
func (l *Logger) Debug(msg string, sds ...rfc5424.SDParam)    { l.outputStructured(DEBUG, msg, sds...) }
func (l *Logger) Info(msg string, sds ...rfc5424.SDParam)     { l.outputStructured(INFO, msg, sds...) }
func (l *Logger) Warn(msg string, sds ...rfc5424.SDParam)     { l.outputStructured(WARN, msg, sds...) }
func (l *Logger) Error(msg string, sds ...rfc5424.SDParam)    { l.outputStructured(ERROR, msg, sds...) }
func (l *Logger) Critical(msg string, sds ...rfc5424.SDParam) { l.outputStructured(CRITICAL, msg, sds...) }

func (l *Logger) outputf(lvl Level, f string, args ...interface{}) {
	l.outputStructured(lvl, fmt.Sprintf(f, args...))
}

func (l *Logger) outputStructured(lvl Level, msg string, sds ...rfc5424.SDParam) {
	l.mtx.Lock()
	skip := l.lvl == OFF || lvl < l.lvl
	lvlCopy, hostname, appname := l.lvl, l.hostname, l.appname
	l.mtx.Unlock()
	if skip {
		return
	}
	_ = lvlCopy
	ts := time.Now()
	loc := callLoc(defaultDepth)
	b, err := genRFCMessage(ts, lvl.priority(), hostname, appname, loc, msg, sds...)
	if err != nil {
		return
	}
	line := strings.TrimRight(string(b), "\n\r")

	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.ready() != nil {
		return
	}
	for _, w := range l.wtrs {
		io.WriteString(w, line)
		io.WriteString(w, "\n")
	}
}

func genRFCMessage(ts time.Time, prio rfc5424.Priority, hostname, appname, msgid, msg string, sds ...rfc5424.SDParam) ([]byte, error) {
	m := rfc5424.Message{
		Priority:  prio,
		Timestamp: ts,
		Hostname:  trimLength(255, hostname),
		AppName:   trimLength(48, appname),
		MessageID: trimLength(32, msgid),
		Message:   []byte(msg),
	}
	if len(sds) > 0 {
		m.StructuredData = []rfc5424.StructuredData{{ID: defaultMsgID, Parameters: sds}}
	}
	return m.MarshalBinary()
}

func callLoc(depth int) string {
	if _, file, line, ok := runtime.Caller(depth); ok {
		dir, base := filepath.Split(file)
		return fmt.Sprintf("%s:%d", filepath.Join(filepath.Base(dir), base), line)
	}
	return ""
}

func trimLength(n int, s string) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (l Level) String() string {
	switch l {
	case OFF:
		return "OFF"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

func (l Level) Valid() bool {
	return l >= OFF && l <= CRITICAL
}

func (l Level) priority() rfc5424.Priority {
	switch l {
	case DEBUG:
		return rfc5424.User | rfc5424.Debug
	case INFO:
		return rfc5424.User | rfc5424.Info
	case WARN:
		return rfc5424.User | rfc5424.Warning
	case ERROR:
		return rfc5424.User | rfc5424.Error
	case CRITICAL:
		return rfc5424.User | rfc5424.Crit
	}
	return rfc5424.User | rfc5424.Debug
}

func LevelFromString(s string) (Level, error) {
	switch strings.ToUpper(s) {
	case "OFF":
		return OFF, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "CRITICAL":
		return CRITICAL, nil
	}
	return OFF, ErrInvalidLevel
}

type discardCloser struct{}

func (discardCloser) Write(b []byte) (int, error) { return len(b), nil }
func (discardCloser) Close() error                { return nil }
