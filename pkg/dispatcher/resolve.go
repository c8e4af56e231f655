package dispatcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/morezero/service-host/pkg/introspect"
)

// SplitURL turns a request URL into its resource address. The query string is
// ignored, a leading and one trailing slash are dropped, and an empty URL is
// the root (an empty address).
func SplitURL(rawURL string) []string {
	u := strings.TrimSpace(rawURL)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimSpace(strings.TrimPrefix(u, "/"))
	if u == "" {
		return []string{}
	}
	parts := strings.Split(u, "/")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	for i, p := range parts {
		if s, err := url.PathUnescape(p); err == nil {
			parts[i] = s
		}
	}
	return parts
}

func escapeSegment(s string) string {
	return url.PathEscape(s)
}

// Resolve walks address from root. found is false when the address names
// nothing; private segments always resolve to nothing. Under "post" an
// operation is invoked and resolution continues into its result; under "get"
// the operation itself is treated as data; any other method against an
// operation fails with 405.
func Resolve(ctx context.Context, rc *RequestContext, root any, address []string) (value any, found bool, err error) {
	return resolve(ctx, rc, root, true, address)
}

func resolve(ctx context.Context, rc *RequestContext, content any, defined bool, address []string) (any, bool, error) {
	if len(address) == 0 {
		return content, defined, nil
	}

	part, rest := address[0], address[1:]
	if introspect.IsPrivate(part) {
		return nil, false, nil
	}

	if !defined || !introspect.IsContainer(content) {
		typ := "undefined"
		if defined {
			typ = fmt.Sprint(introspect.TypeName(content))
		}
		return nil, false, &TraversalError{Segment: part, Type: typ}
	}

	member, ok := introspect.Lookup(content, part)
	if !ok {
		return resolve(ctx, rc, nil, false, rest)
	}

	if member.Kind == introspect.KindOperation {
		switch rc.Method() {
		case MethodPost:
			result, resultDefined, err := introspect.Invoke(ctx, member.Value)
			if err != nil {
				return nil, false, err
			}
			return resolve(ctx, rc, result, resultDefined, rest)
		case MethodGet:
			return resolve(ctx, rc, member.Value, true, rest)
		default:
			return nil, false, NewHTTPError(http.StatusMethodNotAllowed)
		}
	}

	return resolve(ctx, rc, member.Value, true, rest)
}
