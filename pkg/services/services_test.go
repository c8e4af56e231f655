package services

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/service-host/pkg/dispatcher"
	"github.com/morezero/service-host/pkg/lifecycle"
)

func TestLogServiceWritesAndRetains(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogService(slog.New(slog.NewTextHandler(&buf, nil)))

	s.Info("hello", "k", "v")
	s.Warn("careful")
	s.Error("broken")

	out := buf.String()
	assert.Contains(t, out, "msg=hello k=v")
	assert.Contains(t, out, "level=ERROR msg=broken")

	recent := s.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "INFO", recent[0].Level)
	assert.Equal(t, "WARN", recent[1].Level)
	assert.Equal(t, "broken", recent[2].Message)
}

func TestLogServiceRingWraps(t *testing.T) {
	s := NewLogService(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, s.OnConfig(context.Background(), lifecycle.Config{
		"LogService": map[string]any{"capacity": 3},
	}))

	for _, m := range []string{"a", "b", "c", "d", "e"} {
		s.Info(m)
	}

	var got []string
	for _, e := range s.Recent() {
		got = append(got, e.Message)
	}
	assert.Equal(t, []string{"c", "d", "e"}, got)
}

func TestLogServiceConfigKeepsNewest(t *testing.T) {
	s := NewLogService(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	for _, m := range []string{"a", "b", "c"} {
		s.Info(m)
	}

	require.NoError(t, s.OnConfig(context.Background(), lifecycle.Config{
		"LogService": map[string]any{"capacity": float64(2)},
	}))

	recent := s.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Message)
	assert.Equal(t, "c", recent[1].Message)
}

func TestLogServiceConfigErrors(t *testing.T) {
	s := NewLogService(nil)

	assert.NoError(t, s.OnConfig(context.Background(), lifecycle.Config{}))
	assert.Error(t, s.OnConfig(context.Background(), lifecycle.Config{
		"LogService": map[string]any{"capacity": "lots"},
	}))
	assert.Error(t, s.OnConfig(context.Background(), lifecycle.Config{
		"LogService": map[string]any{"capacity": 0},
	}))
}

func TestLogServiceIsLogger(t *testing.T) {
	var _ lifecycle.Logger = NewLogService(nil)
	var _ lifecycle.Configurable = NewLogService(nil)
	var _ dispatcher.Observer = NewRequestService()
}

func TestRequestServiceStats(t *testing.T) {
	s := NewRequestService()
	get := dispatcher.NewRequestContext(dispatcher.RequestContextParams{Method: "GET", URL: "/name"})
	post := dispatcher.NewRequestContext(dispatcher.RequestContextParams{Method: "post", URL: "/ping"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ObserveRequest(get, 200, time.Millisecond)
		}()
	}
	wg.Wait()
	s.ObserveRequest(post, 500, 2*time.Millisecond)

	stats := s.Stats()
	assert.Equal(t, int64(11), stats.Total)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(10), stats.ByStatus[200])
	assert.Equal(t, int64(10), stats.ByMethod["get"])
	assert.Equal(t, int64(1), stats.ByMethod["post"])
	assert.Equal(t, "/ping", stats.LastURL)
	assert.InDelta(t, 12.0, stats.TotalMs, 0.001)

	stats.ByStatus[200] = 0
	assert.Equal(t, int64(10), s.Stats().ByStatus[200])
	assert.True(t, strings.HasPrefix(s.ServiceName(), "Request"))
}
