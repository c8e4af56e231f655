package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/service-host/internal/demo"
	"github.com/morezero/service-host/pkg/bootstrap"
	"github.com/morezero/service-host/pkg/commsutil"
	"github.com/morezero/service-host/pkg/dispatcher"
	"github.com/morezero/service-host/pkg/events"
)

func startTestServer(t *testing.T, port int) (*comms.Conn, func()) {
	t.Helper()

	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("server:comms_integration_test - failed to create server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("server:comms_integration_test - server failed to start")
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("server:comms_integration_test - failed to connect: %v", err)
	}

	return nc, func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}
}

func TestServeOverComms(t *testing.T) {
	nc, cleanup := startTestServer(t, 14260)
	defer cleanup()

	var (
		mu     sync.Mutex
		phases []string
	)
	lifecycleSub, err := nc.Subscribe(commsutil.SubjectLifecycleEvent, func(msg *comms.Msg) {
		var ev events.PhaseEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			t.Errorf("server:comms_integration_test - bad event: %v", err)
			return
		}
		mu.Lock()
		phases = append(phases, ev.Phase+":"+ev.Outcome)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("server:comms_integration_test - failed to subscribe: %v", err)
	}
	defer lifecycleSub.Unsubscribe()
	if err := nc.Flush(); err != nil {
		t.Fatalf("server:comms_integration_test - flush: %v", err)
	}

	cfg := testConfig()
	cfg.COMMSEnabled = true
	s, err := NewServer(NewServerParams{
		Config:        cfg,
		ServiceConfig: bootstrap.GetDefaultServiceConfig(),
		Publisher:     events.NewCommsPublisher(nc, nil),
		UserServices:  []any{demo.NewHelloService},
	})
	if err != nil {
		t.Fatalf("server:comms_integration_test - NewServer: %v", err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("server:comms_integration_test - Start: %v", err)
	}

	subject := s.RequestSubject(ctx)
	if subject != "servicehost.request.test-host.HelloService" {
		t.Errorf("server:comms_integration_test - subject = %q", subject)
	}

	sub, err := s.SubscribeComms(ctx, nc)
	if err != nil {
		t.Fatalf("server:comms_integration_test - SubscribeComms: %v", err)
	}
	defer sub.Unsubscribe()

	req, _ := commsutil.EncodePayload(dispatcher.CommsRequest{Method: "post", URL: "/hello", ClientID: "t1"})
	resp, err := nc.Request(subject, req, 5*time.Second)
	if err != nil {
		t.Fatalf("server:comms_integration_test - request failed: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(resp.Data, &body); err != nil {
		t.Fatalf("server:comms_integration_test - bad reply: %v", err)
	}
	if body["payload"] != "Hello, world!" {
		t.Errorf("server:comms_integration_test - payload = %v, want %q", body["payload"], "Hello, world!")
	}

	if err := nc.Flush(); err != nil {
		t.Fatalf("server:comms_integration_test - flush: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(phases)
		mu.Unlock()
		if n >= 8 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"register:started", "register:completed",
		"config:started", "config:completed",
		"init:started", "init:completed",
		"run:started", "run:completed",
	}
	if len(phases) != len(want) {
		t.Fatalf("server:comms_integration_test - phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("server:comms_integration_test - phases[%d] = %q, want %q", i, phases[i], want[i])
		}
	}
}
