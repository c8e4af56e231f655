// Package services provides the built-in services every host registers
// before its user services.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/service-host/pkg/lifecycle"
)

const logPrefix = "services:log"

const defaultLogCapacity = 200

// LogEntry is one message written through the LogService.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// LogService writes to slog and keeps the most recent entries in memory.
type LogService struct {
	logger *slog.Logger

	mu       sync.Mutex
	entries  []LogEntry
	next     int
	full     bool
	capacity int
}

// NewLogService creates a LogService. A nil logger uses slog.Default.
func NewLogService(logger *slog.Logger) *LogService {
	return &LogService{
		logger:   logger,
		capacity: defaultLogCapacity,
		entries:  make([]LogEntry, defaultLogCapacity),
	}
}

func (s *LogService) ServiceName() string {
	return lifecycle.LogServiceName
}

// OnConfig reads "capacity" from the LogService section.
func (s *LogService) OnConfig(_ context.Context, cfg lifecycle.Config) error {
	raw, ok := cfg.Section(lifecycle.LogServiceName)["capacity"]
	if !ok {
		return nil
	}

	capacity, ok := toInt(raw)
	if !ok || capacity <= 0 {
		return fmt.Errorf("%s - invalid capacity %v", logPrefix, raw)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	recent := s.recentLocked()
	if len(recent) > capacity {
		recent = recent[len(recent)-capacity:]
	}
	s.capacity = capacity
	s.entries = make([]LogEntry, capacity)
	s.next, s.full = 0, false
	for _, e := range recent {
		s.appendLocked(e)
	}
	return nil
}

func (s *LogService) Info(msg string, args ...any) {
	s.log().Info(msg, args...)
	s.record(slog.LevelInfo, msg)
}

func (s *LogService) Warn(msg string, args ...any) {
	s.log().Warn(msg, args...)
	s.record(slog.LevelWarn, msg)
}

func (s *LogService) Error(msg string, args ...any) {
	s.log().Error(msg, args...)
	s.record(slog.LevelError, msg)
}

// Recent returns the retained entries, oldest first.
func (s *LogService) Recent() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentLocked()
}

func (s *LogService) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *LogService) record(level slog.Level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(LogEntry{Time: time.Now().UTC(), Level: level.String(), Message: msg})
}

func (s *LogService) appendLocked(e LogEntry) {
	s.entries[s.next] = e
	s.next = (s.next + 1) % s.capacity
	if s.next == 0 {
		s.full = true
	}
}

func (s *LogService) recentLocked() []LogEntry {
	if !s.full {
		return append([]LogEntry(nil), s.entries[:s.next]...)
	}
	out := make([]LogEntry, 0, s.capacity)
	out = append(out, s.entries[s.next:]...)
	return append(out, s.entries[:s.next]...)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
