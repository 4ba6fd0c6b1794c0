package relay

import (
	"net/url"
	"strings"
)

// credentialSource resolves the remote-service credential for one request.
// Each Mode has its own implementation so caller-supplied keys never reach
// server-held code paths and the reverse.
type credentialSource interface {
	// Resolve returns the credential to use for the request.
	Resolve(req Request) (string, error)
	// MediaKey returns the credential to embed in media URIs handed back to
	// the caller, and whether embedding applies at all.
	MediaKey() (string, bool)
}

// envCredential holds the credential configured in the relay environment.
type envCredential struct {
	key string
}

func (c envCredential) Resolve(Request) (string, error) {
	if c.key == "" {
		return "", ErrUnconfigured
	}
	return c.key, nil
}

func (c envCredential) MediaKey() (string, bool) {
	return c.key, c.key != ""
}

// callerCredential reads the credential from each request.
type callerCredential struct{}

func (callerCredential) Resolve(req Request) (string, error) {
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		return "", ErrMissingAPIKey
	}
	return key, nil
}

// The caller already holds its key; the relay never hands one back.
func (callerCredential) MediaKey() (string, bool) {
	return "", false
}

// AppendKey adds the credential as a key query parameter to a media URI.
func AppendKey(uri, key string) string {
	if uri == "" || key == "" {
		return uri
	}
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + "key=" + url.QueryEscape(key)
}
