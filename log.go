package fpalgo

import (
	"fmt"
	"io"
	"os"
	"sync"

	. "github.com/stevegt/goadapt"
)

// Log collects messages in a channel and writes them to a writer
// from a single goroutine, so training loops never block on output.
type Log struct {
	MsgChan   chan string
	done      chan struct{}
	closeOnce sync.Once
}

// NewLog creates a new Log writing to w, or to stdout if w is nil.
func NewLog(w io.Writer) (l *Log) {
	if w == nil {
		w = os.Stdout
	}
	l = &Log{
		MsgChan: make(chan string, 99999),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(l.done)
		for msg := range l.MsgChan {
			fmt.Fprintln(w, msg)
		}
	}()
	return
}

// I logs a message.  A nil Log discards it.
func (l *Log) I(args ...interface{}) {
	if l == nil {
		return
	}
	l.MsgChan <- FormatArgs(args...)
}

// Close flushes queued messages and stops the writer goroutine.  It
// is safe to call more than once.
func (l *Log) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() { close(l.MsgChan) })
	<-l.done
}
