package services

import (
	"sync"
	"time"

	"github.com/morezero/service-host/pkg/dispatcher"
	"github.com/morezero/service-host/pkg/lifecycle"
)

// RequestStats summarizes the requests a host has served.
type RequestStats struct {
	Total        int64            `json:"total"`
	Errors       int64            `json:"errors"`
	ByStatus     map[int]int64    `json:"byStatus"`
	ByMethod     map[string]int64 `json:"byMethod"`
	TotalMs      float64          `json:"totalMs"`
	LastRequest  time.Time        `json:"lastRequest,omitempty"`
	LastURL      string           `json:"lastUrl,omitempty"`
	LastClientCN string           `json:"lastClientCn,omitempty"`
}

// RequestService counts requests. It is the dispatcher's Observer.
type RequestService struct {
	mu    sync.Mutex
	stats RequestStats
}

// NewRequestService creates a RequestService.
func NewRequestService() *RequestService {
	return &RequestService{
		stats: RequestStats{
			ByStatus: make(map[int]int64),
			ByMethod: make(map[string]int64),
		},
	}
}

func (s *RequestService) ServiceName() string {
	return lifecycle.RequestServiceName
}

// ObserveRequest records one completed request.
func (s *RequestService) ObserveRequest(rc *dispatcher.RequestContext, status int, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Total++
	if status >= 400 {
		s.stats.Errors++
	}
	s.stats.ByStatus[status]++
	s.stats.ByMethod[rc.Method()]++
	s.stats.TotalMs += float64(elapsed) / float64(time.Millisecond)
	s.stats.LastRequest = time.Now().UTC()
	s.stats.LastURL = rc.URL()
	s.stats.LastClientCN = rc.CommonName()
}

// Stats returns a copy of the current statistics.
func (s *RequestService) Stats() RequestStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	out.ByStatus = make(map[int]int64, len(s.stats.ByStatus))
	for k, v := range s.stats.ByStatus {
		out.ByStatus[k] = v
	}
	out.ByMethod = make(map[string]int64, len(s.stats.ByMethod))
	for k, v := range s.stats.ByMethod {
		out.ByMethod[k] = v
	}
	return out
}
