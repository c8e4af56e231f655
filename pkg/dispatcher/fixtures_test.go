package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"
)

type info struct {
	Region string
	Since  time.Time
}

type widget struct {
	Name    string   `json:"name"`
	Tags    []string `json:"tags"`
	Details *info    `json:"details"`
	secret  string
	Private string `json:"_private"`
}

func (w *widget) Ping() string { return "pong" }

func (w *widget) Nested() *info { return w.Details }

func (w *widget) Reset() {}

func (w *widget) Fail() error { return errors.New("widget failure") }

func (w *widget) Boom() string { panic("exploded") }

func (w *widget) Deny() error { return NewHTTPError(403) }

func (w *widget) Caller(ctx context.Context) string {
	rc, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return rc.CommonName()
}

func (w *widget) OnInit(ctx context.Context) error { return nil }

type settings struct {
	Port    int
	Labels  map[string]string
	Limits  []limit
	private string
}

type limit struct {
	MaxConns int
}

type counter struct {
	sync.Mutex
	Hits     int      `json:"hits"`
	Settings settings `json:"settings"`
}

func (c *counter) Hit() int {
	c.Lock()
	defer c.Unlock()
	c.Hits++
	return c.Hits
}

type outcome struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func newCounter() *counter {
	return &counter{Settings: settings{
		Port:    8080,
		Labels:  map[string]string{"zone": "a", "$internal": "x"},
		Limits:  []limit{{MaxConns: 10}},
		private: "hidden",
	}}
}

type trigger struct {
	Label     string `json:"label"`
	Arguments int    `json:"arguments"`
}

func (t trigger) Invoke(ctx context.Context) (any, error) { return t.Label, nil }

func newWidget() *widget {
	return &widget{
		Name:    "svc",
		Tags:    []string{"a", "b"},
		Details: &info{Region: "eu", Since: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		secret:  "hidden",
		Private: "nope",
	}
}

func instanceOf(v any) InstanceFunc {
	return func(ctx context.Context, name string) (any, error) {
		return v, nil
	}
}

func getRC(url string) *RequestContext {
	return NewRequestContext(RequestContextParams{Method: "GET", URL: url, Base: "http://example.test"})
}

func postRC(url string) *RequestContext {
	return NewRequestContext(RequestContextParams{Method: "POST", URL: url, Base: "http://example.test"})
}
