package framework

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const timestampFormat = "15:04:05.000"

// Logger is the minimal logging interface used throughout the harness. *log.Logger
// satisfies it.
type Logger interface {
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (nullLogger) Printf(message string, args ...interface{}) {}

func NullLogger() Logger { return nullLogger{} }

type CapturedMessage struct {
	Time    time.Time
	Message string
}

type CapturedOutput []CapturedMessage

// CapturingLogger keeps everything that is logged to it. It is safe for concurrent use, since
// a server's stdout and stderr are logged from different goroutines.
type CapturingLogger struct {
	output []CapturedMessage
	lock   sync.Mutex
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	l.lock.Lock()
	l.output = append(l.output, CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(message, args...)})
	l.lock.Unlock()
}

func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	ret := append(CapturedOutput(nil), l.output...)
	l.lock.Unlock()
	return ret
}

// Dump writes each message with its timestamp. Continuation lines of a multi-line message are
// indented under the first.
func (output CapturedOutput) Dump(dest io.Writer, prefix string) {
	for _, m := range output {
		stamp := "[" + m.Time.Format(timestampFormat) + "] "
		lines := strings.Split(strings.TrimRight(m.Message, "\n"), "\n")
		fmt.Fprintf(dest, "%s%s%s\n", prefix, stamp, lines[0])
		for _, line := range lines[1:] {
			fmt.Fprintf(dest, "%s%s%s\n", prefix, strings.Repeat(" ", len(stamp)), line)
		}
	}
}

type prefixedLogger struct {
	prefix string
	target Logger
}

// PrefixedLogger returns a Logger that adds a prefix to every message before passing it on.
func PrefixedLogger(target Logger, prefix string) Logger {
	if target == nil {
		return nullLogger{}
	}
	return prefixedLogger{prefix: prefix, target: target}
}

func (p prefixedLogger) Printf(message string, args ...interface{}) {
	p.target.Printf("%s%s", p.prefix, fmt.Sprintf(message, args...))
}

type teeLogger []Logger

// TeeLogger returns a Logger that writes every message to each of the targets.
func TeeLogger(targets ...Logger) Logger {
	return teeLogger(targets)
}

func (t teeLogger) Printf(message string, args ...interface{}) {
	for _, l := range t {
		if l != nil {
			l.Printf(message, args...)
		}
	}
}
