// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package issue is the channel through which non-fatal problems found while
// preparing statements or reading values are reported.
package issue

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Listener receives the text of every reported issue.
type Listener func(msg string)

// Reporter reports issues to a zerolog logger and to registered listeners.
type Reporter struct {
	log zerolog.Logger

	mutex     sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// NewReporter returns a Reporter writing to the given logger.
func NewReporter(log zerolog.Logger) *Reporter {
	return &Reporter{log: log, listeners: map[int]Listener{}}
}

// NewConsoleLogger returns a console logger on stderr at the given level.
func NewConsoleLogger(level zerolog.Level) zerolog.Logger {
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	}
	return zerolog.New(console).Level(level).With().Timestamp().Str("component", "ecsql").Logger()
}

// Nop returns a Reporter that discards everything. It is used when no
// connection is at hand, for instance in unit tests of single components.
func Nop() *Reporter {
	return NewReporter(zerolog.Nop())
}

// Logger returns the underlying logger.
func (r *Reporter) Logger() *zerolog.Logger {
	return &r.log
}

// AddListener registers l and returns a function removing it again.
func (r *Reporter) AddListener(l Listener) func() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	return func() {
		r.mutex.Lock()
		delete(r.listeners, id)
		r.mutex.Unlock()
	}
}

// Report records a warning-level issue.
func (r *Reporter) Report(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.log.Warn().Msg(msg)
	r.notify(msg)
}

// ReportError records an issue caused by err.
func (r *Reporter) ReportError(err error, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.log.Warn().Err(err).Msg(msg)
	r.notify(msg + ": " + err.Error())
}

// Internal records a programmer error: an invariant that the engine itself
// broke. These are logged at error level.
func (r *Reporter) Internal(format string, args ...any) string {
	msg := "internal error: " + fmt.Sprintf(format, args...)
	r.log.Error().Msg(msg)
	r.notify(msg)
	return msg
}

// notify calls the listeners in registration order. They run without the
// mutex held, so a listener may add or remove listeners.
func (r *Reporter) notify(msg string) {
	r.mutex.RLock()
	ids := lo.Keys(r.listeners)
	sort.Ints(ids)
	listeners := lo.Map(ids, func(id int, _ int) Listener { return r.listeners[id] })
	r.mutex.RUnlock()
	for _, l := range listeners {
		l(msg)
	}
}
