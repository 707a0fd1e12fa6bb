package logging

import (
	"net/url"
	"regexp"
)

var credentialRe = regexp.MustCompile(`://([^:/@]+)(:[^@/]*)?@`)

// RedactURI strips credentials from a connection string so it is safe to log.
// The password becomes "***" and the username is truncated to its first two
// characters plus "***". Strings without credentials pass through unchanged.
func RedactURI(uri string) string {
	if uri == "" {
		return uri
	}

	u, err := url.Parse(uri)
	if err == nil && u.User != nil {
		name := u.User.Username()
		if len(name) > 2 {
			name = name[:2] + "***"
		} else if name != "" {
			name += "***"
		}
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(name, "***")
		} else {
			u.User = url.User(name)
		}
		return u.String()
	}

	// Unparseable URIs still must not leak credentials.
	return credentialRe.ReplaceAllStringFunc(uri, func(m string) string {
		sub := credentialRe.FindStringSubmatch(m)
		name := sub[1]
		if len(name) > 2 {
			name = name[:2] + "***"
		} else {
			name += "***"
		}
		if sub[2] != "" {
			return "://" + name + ":***@"
		}
		return "://" + name + "@"
	})
}
