package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	ErrorLevel
)

// ParseLevel converts a level name into a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "notice":
		return NoticeLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// paymentColors are cycled by the first byte of the payment hash so lines of one payment share a color
var paymentColors = []color.Attribute{
	color.FgHiGreen,
	color.FgYellow,
	color.FgMagenta,
	color.FgHiBlue,
	color.FgRed,
	color.FgBlue,
	color.FgGreen,
	color.FgCyan,
}

// Logger is a simple interface for logging messages.
type Logger interface {
	// Info logs an informational message.
	Info(format string, args ...interface{})
	InfoWithPayment(hash common.Hash, format string, args ...interface{})

	// Error logs an error message.
	Error(format string, args ...interface{})
	ErrorWithPayment(hash common.Hash, format string, args ...interface{})

	// Debug logs a debug message.
	Debug(format string, args ...interface{})
	DebugWithPayment(hash common.Hash, format string, args ...interface{})

	// Notice logs a notice message.
	Notice(format string, args ...interface{})
	NoticeWithPayment(hash common.Hash, format string, args ...interface{})
}

// EmptyLogger is a simple implementation of the Logger interface that does nothing.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Info(_ string, _ ...interface{})                             {}
func (l *EmptyLogger) InfoWithPayment(_ common.Hash, _ string, _ ...interface{})   {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})                            {}
func (l *EmptyLogger) ErrorWithPayment(_ common.Hash, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Debug(_ string, _ ...interface{})                            {}
func (l *EmptyLogger) DebugWithPayment(_ common.Hash, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{})                           {}
func (l *EmptyLogger) NoticeWithPayment(_ common.Hash, _ string, _ ...interface{}) {}

// StdLogger is a standard implementation of the Logger interface that logs messages to the console.
type StdLogger struct {
	enableColoring bool
	level          Level
	mu             sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(enableColoring bool, level Level) *StdLogger {
	return &StdLogger{
		enableColoring: enableColoring,
		level:          level,
	}
}

// PaymentPrefix returns the short tag printed in front of payment scoped lines
func PaymentPrefix(hash common.Hash) string {
	if hash == (common.Hash{}) {
		return ""
	}
	h := hash.Hex()
	return "[" + h[:10] + "] "
}

// formatMessage formats the log message with the appropriate log level, payment prefix, and coloring if enabled.
func (l *StdLogger) formatMessage(level Level, hash common.Hash, format string) string {
	prefix := PaymentPrefix(hash)
	if l.enableColoring && prefix != "" {
		prefix = color.New(paymentColors[int(hash[0])%len(paymentColors)]).Sprint(prefix)
	}

	var levelStr string
	switch level {
	case DebugLevel:
		levelStr = "[DEBUG]  "
	case InfoLevel:
		levelStr = "[INFO]   "
	case NoticeLevel:
		levelStr = "[NOTICE] "
	case ErrorLevel:
		levelStr = "[ERROR]  "
	}

	return levelStr + prefix + format
}

func (l *StdLogger) logf(level Level, hash common.Hash, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= level {
		log.Printf(l.formatMessage(level, hash, format), args...)
	}
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.logf(InfoLevel, common.Hash{}, format, args...)
}

func (l *StdLogger) InfoWithPayment(hash common.Hash, format string, args ...interface{}) {
	l.logf(InfoLevel, hash, format, args...)
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.logf(ErrorLevel, common.Hash{}, format, args...)
}

func (l *StdLogger) ErrorWithPayment(hash common.Hash, format string, args ...interface{}) {
	l.logf(ErrorLevel, hash, format, args...)
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.logf(DebugLevel, common.Hash{}, format, args...)
}

func (l *StdLogger) DebugWithPayment(hash common.Hash, format string, args ...interface{}) {
	l.logf(DebugLevel, hash, format, args...)
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.logf(NoticeLevel, common.Hash{}, format, args...)
}

func (l *StdLogger) NoticeWithPayment(hash common.Hash, format string, args ...interface{}) {
	l.logf(NoticeLevel, hash, format, args...)
}
