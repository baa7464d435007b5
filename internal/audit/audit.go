package audit

import (
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ssesports/scrims-bot/internal/registry"
)

// Sink mirrors audit events to an additional surface (the Discord audit
// channel). Sinks must not block for long and must swallow their own errors.
type Sink interface {
	Send(e registry.AuditEvent)
}

// Log is the durable audit trail: one JSON line per lifecycle event, written
// to a size-rotated file. Recording never fails the transition that produced
// the event.
type Log struct {
	log zerolog.Logger

	mu    sync.RWMutex
	sinks []Sink
}

// New opens the audit trail at path. Rotation keeps a handful of 10 MB files,
// enough for months of lobby days.
func New(path string) *Log {
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     90, // days
	}
	return &Log{
		log: zerolog.New(writer).With().Timestamp().Logger(),
	}
}

// AddSink registers an additional event mirror.
func (l *Log) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Record writes the event and fans it out to sinks.
func (l *Log) Record(e registry.AuditEvent) {
	ev := l.log.Info().Str("event", e.Name)
	if e.RegID != 0 {
		ev = ev.Int64("reg_id", e.RegID)
	}
	if e.LobbyKey != "" {
		ev = ev.Str("lobby", e.LobbyKey)
	}
	if e.Team != "" {
		ev = ev.Str("team", e.Team)
	}
	if e.LeaderID != "" {
		ev = ev.Str("leader_id", e.LeaderID)
	}
	if e.Actor != "" {
		ev = ev.Str("actor", e.Actor)
	}
	if e.Detail != "" {
		ev = ev.Str("detail", e.Detail)
	}
	ev.Msg("audit")

	l.mu.RLock()
	sinks := l.sinks
	l.mu.RUnlock()
	for _, s := range sinks {
		s.Send(e)
	}
}
