// Package logging configures the shared logrus instance used across the
// application: a compact single-line format with caller information, and
// an optional rotating log file.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	setupOnce sync.Once
	writerMu  sync.Mutex
	logWriter *lumberjack.Logger
)

// Formatter renders log entries as
// [2026-03-10 15:04:05] [info ] [manager.go:87] message
type Formatter struct{}

// Format renders a single log entry.
func (f *Formatter) Format(entry *log.Entry) ([]byte, error) {
	var buffer *bytes.Buffer
	if entry.Buffer != nil {
		buffer = entry.Buffer
	} else {
		buffer = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	message := strings.TrimRight(entry.Message, "\r\n")

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}
	levelStr := fmt.Sprintf("%-5s", level)

	if entry.Caller != nil {
		fmt.Fprintf(buffer, "[%s] [%s] [%s:%d] %s\n", timestamp, levelStr,
			filepath.Base(entry.Caller.File), entry.Caller.Line, message)
	} else {
		fmt.Fprintf(buffer, "[%s] [%s] %s\n", timestamp, levelStr, message)
	}

	return buffer.Bytes(), nil
}

// Setup configures the shared logrus instance. Safe to call multiple
// times; initialization happens only once.
func Setup(debug bool) {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&Formatter{})
		log.RegisterExitHandler(closeLogFile)
	})
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// EnableFileOutput mirrors log output into a rotating file alongside
// stdout. maxSizeMB and maxBackups follow lumberjack semantics; zero
// values pick conservative defaults.
func EnableFileOutput(path string, maxSizeMB, maxBackups int) error {
	if path == "" {
		return fmt.Errorf("log file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}

	writerMu.Lock()
	defer writerMu.Unlock()
	logWriter = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, logWriter))
	return nil
}

func closeLogFile() {
	writerMu.Lock()
	defer writerMu.Unlock()
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
}
