package errors

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// ValidateSiteURL validates the CMS site URL from the auth configuration.
// It must be an absolute http(s) URL with a host and no query or fragment,
// because request paths are appended to it verbatim.
func ValidateSiteURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidConfig, "the `auth.site_url` is empty. Please provide a valid URL")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidConfig, "the `auth.site_url` must use http or https scheme")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Wrap(ErrCodeInvalidConfig, err, "the `auth.site_url` is not a valid URL")
	}
	if u.Host == "" {
		return New(ErrCodeInvalidConfig, "the `auth.site_url` has no host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return New(ErrCodeInvalidConfig, "the `auth.site_url` cannot contain a query or fragment")
	}

	return nil
}

// ValidateEndpointPath validates an endpoint path relative to the site URL.
//
// Validation rules:
//   - Path cannot be empty
//   - Must start with /
//   - No control characters or backslashes
//   - No path traversal sequences (..)
func ValidateEndpointPath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidConfig, "endpoint path cannot be empty")
	}

	for _, r := range path {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidConfig, "endpoint path contains invalid characters")
		}
	}

	if !strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidConfig, "endpoint path must start with /: %q", path)
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidConfig, "endpoint path cannot contain path traversal sequences (..)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidConfig, "endpoint path cannot contain backslashes")
	}

	return nil
}

// nodeNameRegex matches names usable as node types downstream
// (GraphQL type names: a letter followed by letters, digits or underscores).
var nodeNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateNodeName validates the node name an endpoint's results are labelled with.
func ValidateNodeName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidConfig, "node name cannot be empty")
	}

	if len(name) > 128 {
		return New(ErrCodeInvalidConfig, "node name too long (max 128 characters)")
	}

	if !nodeNameRegex.MatchString(name) {
		return New(ErrCodeInvalidConfig, "invalid node name: %q", name)
	}

	return nil
}
