package blogvault

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
	"time"
)

// URLSigner issues time-bounded read tokens for stored image objects. The
// token is an HMAC over the container name, the object name, the read
// permission flag, and an absolute expiry, appended to the object URL as a
// query string — the shape browsers can use directly in an <img> tag.
//
// With no signing key configured, Sign returns the bare URL and public
// access is assumed.
type URLSigner struct {
	container string
	key       []byte
	validity  time.Duration
}

// NewURLSigner derives the signing secret from the storage account key. An
// empty key disables signing.
func NewURLSigner(container, accountKey string, validity time.Duration) *URLSigner {
	var key []byte
	if accountKey != "" {
		key = []byte(accountKey)
	}
	return &URLSigner{container: container, key: key, validity: validity}
}

// Sign appends a read token valid for the configured duration to baseURL.
func (s *URLSigner) Sign(baseURL, objectName string) string {
	if len(s.key) == 0 {
		return baseURL
	}
	expiry := time.Now().Add(s.validity).UTC().Format(time.RFC3339)

	q := url.Values{}
	q.Set("se", expiry)
	q.Set("sp", "r")
	q.Set("sig", s.signature(objectName, expiry))
	return baseURL + "?" + q.Encode()
}

// Verify checks a token produced by Sign. It is used by the local backend's
// image route; remote object stores verify their own tokens.
func (s *URLSigner) Verify(objectName string, q url.Values) bool {
	if len(s.key) == 0 {
		return true
	}
	expiry := q.Get("se")
	if q.Get("sp") != "r" || expiry == "" {
		return false
	}
	exp, err := time.Parse(time.RFC3339, expiry)
	if err != nil || time.Now().After(exp) {
		return false
	}
	return hmac.Equal([]byte(q.Get("sig")), []byte(s.signature(objectName, expiry)))
}

func (s *URLSigner) signature(objectName, expiry string) string {
	canonical := strings.Join([]string{s.container, objectName, "r", expiry}, "\n")
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
