package a2aclient

import (
	"net/url"
	"strings"
)

// MessageEndpoint derives the message endpoint from an agent URL. One
// trailing slash is dropped; a path that already ends in /messages or
// contains /messages/ is used as is, anything else gets /messages appended.
// With stream the stream=true query parameter is added.
func MessageEndpoint(agentURL string, stream bool) string {
	u, err := url.Parse(agentURL)
	if err != nil || u.Opaque != "" {
		return messageEndpointString(agentURL, stream)
	}

	escaped := messagesPath(strings.TrimSuffix(u.EscapedPath(), "/"))
	p, err := url.PathUnescape(escaped)
	if err != nil {
		return messageEndpointString(agentURL, stream)
	}
	u.Path, u.RawPath = p, escaped
	if stream {
		q := u.RawQuery
		if q != "" {
			q += "&"
		}
		u.RawQuery = q + "stream=true"
	}
	return u.String()
}

func messagesPath(p string) string {
	if strings.HasSuffix(p, "/messages") || strings.Contains(p, "/messages/") {
		return p
	}
	return p + "/messages"
}

func messageEndpointString(agentURL string, stream bool) string {
	s := messagesPath(strings.TrimSuffix(agentURL, "/"))
	if stream {
		if strings.Contains(s, "?") {
			return s + "&stream=true"
		}
		return s + "?stream=true"
	}
	return s
}

// TaskEndpoint returns the protocol-standard task creation endpoint.
func TaskEndpoint(agentURL string) string {
	return strings.TrimSuffix(agentURL, "/") + "/tasks"
}
