package dispatcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	mu       sync.Mutex
	statuses []int
}

func (o *recordingObserver) ObserveRequest(rc *RequestContext, status int, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func do(t *testing.T, h http.Handler, method, target string) (int, map[string]any, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	body := rec.Body.String()
	var decoded map[string]any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - reply is not JSON: %v\n%s", err, body)
	}
	return rec.Code, decoded, body
}

func TestHandler_GetRoot(t *testing.T) {
	h := NewDispatcher(Options{}).Handler("WidgetService", instanceOf(newWidget()))

	code, body, raw := do(t, h, http.MethodGet, "/")
	if code != http.StatusOK {
		t.Fatalf("dispatcher:dispatcher_test - expected 200, got %d", code)
	}
	if body["name"] != "svc" {
		t.Errorf("dispatcher:dispatcher_test - expected name=svc, got %v", body["name"])
	}
	ping, ok := body["ping"].(map[string]any)
	if !ok {
		t.Fatalf("dispatcher:dispatcher_test - expected ping descriptor, got %v", body["ping"])
	}
	if ping["$type"] != "Function" || ping["$method"] != "post" || ping["$ref"] != "http://example.com/ping" {
		t.Errorf("dispatcher:dispatcher_test - unexpected descriptor %v", ping)
	}
	if !strings.HasPrefix(raw, "{\n  \"$ref\"") || !strings.HasSuffix(raw, "}\n") {
		t.Errorf("dispatcher:dispatcher_test - body is not pretty JSON with trailing newline:\n%s", raw)
	}
}

func TestHandler_PostInvokes(t *testing.T) {
	h := NewDispatcher(Options{}).Handler("WidgetService", instanceOf(newWidget()))

	code, body, _ := do(t, h, http.MethodPost, "/ping")
	if code != http.StatusOK {
		t.Fatalf("dispatcher:dispatcher_test - expected 200, got %d", code)
	}
	if body["$path"] != "payload" || body["payload"] != "pong" || body["$type"] != "String" {
		t.Errorf("dispatcher:dispatcher_test - unexpected envelope %v", body)
	}
}

func TestHandler_GetOperationDescribesIt(t *testing.T) {
	h := NewDispatcher(Options{}).Handler("WidgetService", instanceOf(newWidget()))

	code, body, _ := do(t, h, http.MethodGet, "/ping")
	if code != http.StatusOK {
		t.Fatalf("dispatcher:dispatcher_test - expected 200, got %d", code)
	}
	if body["$method"] != "post" {
		t.Errorf("dispatcher:dispatcher_test - expected $method=post, got %v", body)
	}
	if _, ok := body["$path"]; ok {
		t.Error("dispatcher:dispatcher_test - invocable envelope must not carry $path")
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := NewDispatcher(Options{}).Handler("WidgetService", instanceOf(newWidget()))

	code, body, _ := do(t, h, http.MethodDelete, "/ping")
	if code != http.StatusMethodNotAllowed {
		t.Fatalf("dispatcher:dispatcher_test - expected 405, got %d", code)
	}
	if body["$type"] != "error" || body["code"] != float64(405) {
		t.Errorf("dispatcher:dispatcher_test - unexpected envelope %v", body)
	}
}

func TestHandler_NotFound(t *testing.T) {
	h := NewDispatcher(Options{}).Handler("WidgetService", instanceOf(newWidget()))

	for _, target := range []string{"/missing", "/_private", "/constructor", "/reset"} {
		method := http.MethodGet
		if target == "/reset" {
			method = http.MethodPost
		}
		code, body, _ := do(t, h, method, target)
		if code != http.StatusNotFound {
			t.Errorf("dispatcher:dispatcher_test - %s: expected 404, got %d", target, code)
		}
		if body["code"] != float64(404) || body["message"] != "Not Found" {
			t.Errorf("dispatcher:dispatcher_test - %s: unexpected envelope %v", target, body)
		}
	}
}

func TestHandler_TrailingSlash(t *testing.T) {
	h := NewDispatcher(Options{}).Handler("WidgetService", instanceOf(newWidget()))

	_, a, _ := do(t, h, http.MethodGet, "/details")
	_, b, _ := do(t, h, http.MethodGet, "/details/")
	if a["region"] != "eu" || b["region"] != "eu" {
		t.Errorf("dispatcher:dispatcher_test - trailing slash changed the result: %v vs %v", a, b)
	}
}

func TestHandler_Faults(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		production bool
		wantCode   int
		wantExType any
	}{
		{"operation error", http.MethodPost, "/fail", false, 500, []any{"errorString", "Error"}},
		{"panic", http.MethodPost, "/boom", false, 500, []any{"PanicError", "Error"}},
		{"traversal", http.MethodGet, "/name/length", false, 500, []any{"TraversalError", "Error"}},
		{"http error", http.MethodPost, "/deny", false, 403, []any{"HTTPError", "Error"}},
		{"production", http.MethodPost, "/fail", true, 500, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewDispatcher(Options{Production: tt.production}).Handler("WidgetService", instanceOf(newWidget()))

			code, body, _ := do(t, h, tt.method, tt.target)
			if code != tt.wantCode {
				t.Fatalf("dispatcher:dispatcher_test - expected %d, got %d", tt.wantCode, code)
			}
			if body["$statusCode"] != float64(tt.wantCode) {
				t.Errorf("dispatcher:dispatcher_test - $statusCode = %v", body["$statusCode"])
			}

			ex, hasEx := body["exception"].(map[string]any)
			if tt.production {
				if hasEx {
					t.Error("dispatcher:dispatcher_test - production reply must not carry exception")
				}
				return
			}
			if !hasEx {
				t.Fatalf("dispatcher:dispatcher_test - expected exception, got %v", body)
			}
			if typ := ex["$type"]; !jsonEqual(typ, tt.wantExType) {
				t.Errorf("dispatcher:dispatcher_test - exception $type = %v, want %v", typ, tt.wantExType)
			}
		})
	}
}

func TestHandler_UnencodableResultFallsBackToErrorEnvelope(t *testing.T) {
	svc := map[string]any{"stream": func() chan int { return make(chan int) }}
	h := NewDispatcher(Options{}).Handler("Streams", instanceOf(svc))

	code, body, _ := do(t, h, http.MethodPost, "/stream")
	if code != http.StatusInternalServerError || body["$type"] != "error" {
		t.Errorf("dispatcher:dispatcher_test - expected 500 error envelope, got %d %v", code, body)
	}
}

func TestHandler_Misconfigured(t *testing.T) {
	tests := map[string]InstanceFunc{
		"scalar instance": instanceOf("not an object"),
		"lookup error": func(ctx context.Context, name string) (any, error) {
			return nil, errors.New("no such service")
		},
		"empty list": instanceOf([]any{}),
		"nil lookup":  nil,
	}

	for name, lookup := range tests {
		t.Run(name, func(t *testing.T) {
			h := NewDispatcher(Options{}).Handler("Broken", lookup)
			code, body, _ := do(t, h, http.MethodGet, "/")
			if code != http.StatusInternalServerError || body["$type"] != "error" {
				t.Errorf("dispatcher:dispatcher_test - expected 500 error envelope, got %d %v", code, body)
			}
		})
	}
}

func TestHandler_ListInstanceUsesFirst(t *testing.T) {
	h := NewDispatcher(Options{}).Handler("WidgetService", instanceOf([]any{newWidget(), "ignored"}))

	code, body, _ := do(t, h, http.MethodGet, "/name")
	if code != http.StatusOK || body["payload"] != "svc" {
		t.Errorf("dispatcher:dispatcher_test - expected first list element, got %d %v", code, body)
	}
}

func TestHandler_ObserverSeesEveryRequest(t *testing.T) {
	obs := &recordingObserver{}
	h := NewDispatcher(Options{Observer: obs}).Handler("WidgetService", instanceOf(newWidget()))

	do(t, h, http.MethodGet, "/")
	do(t, h, http.MethodGet, "/missing")
	do(t, h, http.MethodPost, "/fail")

	want := []int{200, 404, 500}
	if len(obs.statuses) != len(want) {
		t.Fatalf("dispatcher:dispatcher_test - observed %v, want %v", obs.statuses, want)
	}
	for i := range want {
		if obs.statuses[i] != want[i] {
			t.Errorf("dispatcher:dispatcher_test - observed %v, want %v", obs.statuses, want)
		}
	}
}

func TestHandler_PeerCommonName(t *testing.T) {
	h := NewDispatcher(Options{}).Handler("WidgetService", instanceOf(newWidget()))

	req := httptest.NewRequest(http.MethodPost, "/caller", nil)
	req.TLS = &tls.ConnectionState{
		PeerCertificates: []*x509.Certificate{{Subject: pkix.Name{CommonName: "client-7"}}},
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	data, _ := io.ReadAll(rec.Body)
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - reply is not JSON: %v", err)
	}
	if body["payload"] != "client-7" {
		t.Errorf("dispatcher:dispatcher_test - expected client-7, got %v", body["payload"])
	}
	if body["$ref"] != "https://example.com/caller" {
		t.Errorf("dispatcher:dispatcher_test - expected https ref, got %v", body["$ref"])
	}
}

func jsonEqual(a, b any) bool {
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return string(ja) == string(jb)
}

func TestHandler_EmbeddedMutexIsNotAnOperation(t *testing.T) {
	h := NewDispatcher(Options{}).Handler("Counter", instanceOf(newCounter()))

	code, body, _ := do(t, h, http.MethodGet, "/")
	if code != http.StatusOK {
		t.Fatalf("dispatcher:dispatcher_test - expected 200, got %d", code)
	}
	for _, name := range []string{"lock", "unlock", "tryLock"} {
		if _, ok := body[name]; ok {
			t.Errorf("dispatcher:dispatcher_test - %q must not be listed", name)
		}
		if code, _, _ := do(t, h, http.MethodPost, "/"+name); code != http.StatusNotFound {
			t.Errorf("dispatcher:dispatcher_test - POST /%s expected 404, got %d", name, code)
		}
	}
	if body["$type"] != "counter" {
		t.Errorf("dispatcher:dispatcher_test - expected $type counter, got %v", body["$type"])
	}

	code, body, _ = do(t, h, http.MethodPost, "/hit")
	if code != http.StatusOK || !jsonEqual(body["payload"], 1) {
		t.Errorf("dispatcher:dispatcher_test - expected hit to count, got %d %v", code, body)
	}
}

func TestHandler_ScaffoldingNamedFieldsStayPublic(t *testing.T) {
	h := NewDispatcher(Options{}).Handler("Result", instanceOf(outcome{Status: "bad", Error: "disk full"}))

	_, body, _ := do(t, h, http.MethodGet, "/")
	if body["error"] != "disk full" {
		t.Errorf("dispatcher:dispatcher_test - expected error field, got %v", body)
	}

	code, body, _ := do(t, h, http.MethodGet, "/error")
	if code != http.StatusOK || body["payload"] != "disk full" {
		t.Errorf("dispatcher:dispatcher_test - expected 200 disk full, got %d %v", code, body)
	}
}

func TestHandler_NestedKeysAreAddressable(t *testing.T) {
	h := NewDispatcher(Options{}).Handler("Counter", instanceOf(newCounter()))

	var walk func(path string, value any)
	walk = func(path string, value any) {
		nested, ok := value.(map[string]any)
		if !ok {
			return
		}
		for key, child := range nested {
			if strings.HasPrefix(key, "$") {
				continue
			}
			target := path + "/" + key
			code, _, _ := do(t, h, http.MethodGet, target)
			if code != http.StatusOK {
				t.Errorf("dispatcher:dispatcher_test - GET %s expected 200, got %d", target, code)
			}
			walk(target, child)
		}
	}

	_, body, _ := do(t, h, http.MethodGet, "/settings")
	walk("/settings", body)

	code, body, _ := do(t, h, http.MethodGet, "/settings/port")
	if code != http.StatusOK || !jsonEqual(body["payload"], 8080) {
		t.Errorf("dispatcher:dispatcher_test - expected port 8080, got %d %v", code, body)
	}
}

func TestHandler_TypedListInstanceUsesFirst(t *testing.T) {
	h := NewDispatcher(Options{}).Handler("WidgetService", instanceOf([]*widget{newWidget()}))

	code, body, _ := do(t, h, http.MethodGet, "/name")
	if code != http.StatusOK || body["payload"] != "svc" {
		t.Errorf("dispatcher:dispatcher_test - expected first element of a typed list, got %d %v", code, body)
	}

	h = NewDispatcher(Options{}).Handler("WidgetService", instanceOf([]*widget{}))
	code, body, _ = do(t, h, http.MethodGet, "/")
	if code != http.StatusInternalServerError || body["$type"] != "error" {
		t.Errorf("dispatcher:dispatcher_test - expected misconfigured 500 for an empty list, got %d %v", code, body)
	}
}
