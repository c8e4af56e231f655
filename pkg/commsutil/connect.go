// Package commsutil provides COMMS connection helpers and utilities.
package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

// ConnectParams holds parameters for Connect. Zero durations and counts use
// the defaults below.
type ConnectParams struct {
	URL           string
	Name          string
	Timeout       time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
}

const (
	defaultTimeout       = 10 * time.Second
	defaultReconnectWait = 2 * time.Second
	defaultMaxReconnects = 60
)

// Connect creates a COMMS connection.
func Connect(params ConnectParams) (*comms.Conn, error) {
	if params.Timeout <= 0 {
		params.Timeout = defaultTimeout
	}
	if params.ReconnectWait <= 0 {
		params.ReconnectWait = defaultReconnectWait
	}
	if params.MaxReconnects == 0 {
		params.MaxReconnects = defaultMaxReconnects
	}

	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s", logPrefix, params.URL, params.Name))

	nc, err := comms.Connect(params.URL,
		comms.Name(params.Name),
		comms.Timeout(params.Timeout),
		comms.ReconnectWait(params.ReconnectWait),
		comms.MaxReconnects(params.MaxReconnects),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - COMMS disconnected: %v", logPrefix, err))
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS reconnected to %s", logPrefix, nc.ConnectedUrl()))
		}),
		comms.ClosedHandler(func(_ *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS connection closed", logPrefix))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}
