package dispatcher

import (
	"context"
	"crypto/x509"
	"net/http"
	"strings"
)

// Lower-cased request methods as they appear in a RequestContext.
const (
	MethodGet     = "get"
	MethodPost    = "post"
	MethodHead    = "head"
	MethodPut     = "put"
	MethodDelete  = "delete"
	MethodPatch   = "patch"
	MethodOptions = "options"
)

// RequestContext is the immutable per-request metadata handed to resolution
// and shaping.
type RequestContext struct {
	remoteAddress   string
	peerCertificate *x509.Certificate
	commonName      string
	method          string
	url             string
	base            string
}

// RequestContextParams holds parameters for NewRequestContext.
type RequestContextParams struct {
	RemoteAddress   string
	PeerCertificate *x509.Certificate
	Method          string
	URL             string
	// Base is the scheme and authority prefixed to references, e.g.
	// "https://api.example.com". Empty yields path-only references.
	Base string
}

// NewRequestContext builds a RequestContext.
func NewRequestContext(params RequestContextParams) *RequestContext {
	rc := &RequestContext{
		remoteAddress:   params.RemoteAddress,
		peerCertificate: params.PeerCertificate,
		method:          strings.ToLower(params.Method),
		url:             params.URL,
		base:            strings.TrimRight(params.Base, "/"),
	}
	if params.PeerCertificate != nil {
		rc.commonName = params.PeerCertificate.Subject.CommonName
	}
	return rc
}

// FromHTTPRequest builds a RequestContext from an incoming HTTP request.
func FromHTTPRequest(r *http.Request) *RequestContext {
	scheme := "http"
	var cert *x509.Certificate
	if r.TLS != nil {
		scheme = "https"
		if len(r.TLS.PeerCertificates) > 0 {
			cert = r.TLS.PeerCertificates[0]
		}
	}
	return NewRequestContext(RequestContextParams{
		RemoteAddress:   r.RemoteAddr,
		PeerCertificate: cert,
		Method:          r.Method,
		URL:             r.URL.RequestURI(),
		Base:            scheme + "://" + r.Host,
	})
}

func (c *RequestContext) RemoteAddress() string { return c.remoteAddress }

func (c *RequestContext) PeerCertificate() *x509.Certificate { return c.peerCertificate }

// CommonName is the subject common name of the client certificate, or "".
func (c *RequestContext) CommonName() string { return c.commonName }

// Method is the lower-cased request method.
func (c *RequestContext) Method() string { return c.method }

func (c *RequestContext) URL() string { return c.url }

// Ref returns the canonical address of the current resource, or of a member
// below it when suffix segments are given.
func (c *RequestContext) Ref(suffix ...string) string {
	p := c.url
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for _, s := range suffix {
		if s = strings.Trim(s, "/"); s != "" {
			p += "/" + escapeSegment(s)
		}
	}
	if p == "" {
		p = "/"
	}
	return c.base + p
}

type requestContextKey struct{}

// WithRequestContext attaches rc to ctx. Invoked operations receive this
// context and can read the caller's certificate common name from it.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the RequestContext attached to ctx.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}
