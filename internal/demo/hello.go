// Package demo provides the sample service the servicehost binary serves when
// no other user service is configured.
package demo

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/morezero/service-host/pkg/dispatcher"
	"github.com/morezero/service-host/pkg/lifecycle"
)

const serviceName = "HelloService"

// Profile is nested data exposed under /profile.
type Profile struct {
	Owner string   `json:"owner"`
	Tags  []string `json:"tags"`
}

// HelloService greets callers. Its exported fields are readable resources and
// its exported methods are operations invoked with POST.
type HelloService struct {
	Greeting  string    `json:"greeting"`
	StartedAt time.Time `json:"startedAt"`
	Profile   *Profile  `json:"profile"`

	calls atomic.Int64
}

// NewHelloService creates a HelloService with the default greeting.
func NewHelloService() *HelloService {
	return &HelloService{
		Greeting: "Hello",
		Profile:  &Profile{Owner: "servicehost", Tags: []string{"demo"}},
	}
}

func (s *HelloService) ServiceName() string {
	return serviceName
}

func (s *HelloService) ServiceVersion() string {
	return "1.0.0"
}

// OnConfig reads "greeting" from the HelloService section.
func (s *HelloService) OnConfig(_ context.Context, cfg lifecycle.Config) error {
	section := cfg.Section(serviceName)
	raw, ok := section["greeting"]
	if !ok {
		return nil
	}
	greeting, ok := raw.(string)
	if !ok || greeting == "" {
		return fmt.Errorf("demo:hello - greeting must be a non-empty string, got %v", raw)
	}
	s.Greeting = greeting
	return nil
}

func (s *HelloService) OnRun(_ context.Context) error {
	s.StartedAt = time.Now().UTC()
	return nil
}

// Hello greets the caller by certificate common name when one was presented.
func (s *HelloService) Hello(ctx context.Context) string {
	s.calls.Add(1)
	who := "world"
	if rc, ok := dispatcher.FromContext(ctx); ok && rc.CommonName() != "" {
		who = rc.CommonName()
	}
	return fmt.Sprintf("%s, %s!", s.Greeting, who)
}

// Calls returns how many times Hello was invoked.
func (s *HelloService) Calls() int64 {
	return s.calls.Load()
}

// Forbidden always refuses.
func (s *HelloService) Forbidden() error {
	return dispatcher.NewHTTPError(403, "Greetings are not allowed here")
}
