package commsutil

import "testing"

func TestBuildLifecycleSubject(t *testing.T) {
	tests := []struct {
		host  string
		phase string
		want  string
	}{
		{"svc-host", "init", "servicehost.lifecycle.svc-host.init"},
		{"a.b", "run", "servicehost.lifecycle.a_b.run"},
		{"", "config", "servicehost.lifecycle._.config"},
	}

	for _, tt := range tests {
		if got := BuildLifecycleSubject(tt.host, tt.phase); got != tt.want {
			t.Errorf("commsutil:subjects_test - BuildLifecycleSubject(%q, %q) = %q, want %q", tt.host, tt.phase, got, tt.want)
		}
	}
}

func TestBuildRequestSubject(t *testing.T) {
	tests := []struct {
		host    string
		service string
		want    string
	}{
		{"svc-host", "HelloService", "servicehost.request.svc-host.HelloService"},
		{"svc-host", "hello.v1", "servicehost.request.svc-host.hello_v1"},
		{"svc host", "wild*>", "servicehost.request.svc_host.wild__"},
	}

	for _, tt := range tests {
		if got := BuildRequestSubject(tt.host, tt.service); got != tt.want {
			t.Errorf("commsutil:subjects_test - BuildRequestSubject(%q, %q) = %q, want %q", tt.host, tt.service, got, tt.want)
		}
	}
}
