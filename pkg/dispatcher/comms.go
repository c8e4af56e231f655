package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/service-host/pkg/commsutil"
)

const commsLogPrefix = "dispatcher:comms"

// CommsHandler returns a COMMS message handler that serves the instance named
// serviceName. Each message carries a CommsRequest and is answered with the
// same envelope bytes an HTTP client would receive. A positive timeout bounds
// each request's context.
func (d *Dispatcher) CommsHandler(ctx context.Context, serviceName string, getInstance InstanceFunc, timeout time.Duration) comms.MsgHandler {
	lookup := d.lookup(serviceName, getInstance)

	return func(msg *comms.Msg) {
		var req CommsRequest
		if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode request on %s: %v", commsLogPrefix, msg.Subject, err))
			rc := NewRequestContext(RequestContextParams{RemoteAddress: msg.Subject})
			d.reply(msg, ShapeError(rc, http.StatusBadRequest, "Bad Request", err, d.opts.Production))
			return
		}

		method := req.Method
		if method == "" {
			method = MethodGet
		}
		rc := NewRequestContext(RequestContextParams{
			RemoteAddress: "comms:" + req.ClientID,
			Method:        method,
			URL:           req.URL,
		})

		reqCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		defer cancel()

		body, _ := d.Serve(reqCtx, rc, lookup)
		if err := msg.Respond(body); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond on %s: %v", commsLogPrefix, msg.Subject, err))
		}
	}
}

func (d *Dispatcher) reply(msg *comms.Msg, env *Envelope) {
	body, err := env.Encode()
	if err != nil {
		body = fallbackBody
	}
	if err := msg.Respond(body); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond on %s: %v", commsLogPrefix, msg.Subject, err))
	}
}
