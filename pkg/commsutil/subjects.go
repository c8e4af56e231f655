package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectLifecycleEvent = "servicehost.lifecycle"
	SubjectRequestPrefix  = "servicehost.request"
)

// BuildLifecycleSubject builds the granular subject a host publishes one
// lifecycle phase on.
func BuildLifecycleSubject(host, phase string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectLifecycleEvent, Token(host), Token(phase))
}

// BuildRequestSubject builds the subject a host serves a service's resource
// requests on.
func BuildRequestSubject(host, service string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectRequestPrefix, Token(host), Token(service))
}

// Token makes s safe for use as a single subject token.
func Token(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
