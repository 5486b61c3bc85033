package notifier

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

const (
	redacted        = "[REDACTED]"
	maxErrorMessage = 500
)

var urlPattern = regexp.MustCompile(`https?://[^\s"']+`)

// SanitizeError renders err for storage: configured secrets are redacted,
// URLs are cut down to scheme and host, and the message is bounded.
func SanitizeError(err error, ch models.AlertChannel) string {
	if err == nil {
		return ""
	}
	msg := err.Error()

	for _, secret := range ch.Secrets() {
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	msg = urlPattern.ReplaceAllStringFunc(msg, func(raw string) string {
		u, perr := url.Parse(raw)
		if perr != nil || u.Host == "" {
			return redacted
		}
		if u.Path == "" || u.Path == "/" {
			if u.RawQuery == "" {
				return u.Scheme + "://" + u.Host
			}
		}
		return u.Scheme + "://" + u.Host + "/" + redacted
	})

	return truncate(msg, maxErrorMessage)
}

// deliveryError carries a sanitized message while keeping the cause for
// errors.Is.
type deliveryError struct {
	msg string
	err error
}

func (e *deliveryError) Error() string { return e.msg }

func (e *deliveryError) Unwrap() error { return e.err }
