package optimizely

import "strconv"

// Content delivery API paths, relative to the site URL.
const (
	RequestURLSlug  = "/api/episerver"
	ContentEndpoint = RequestURLSlug + "/v2.0/content/"
	AuthEndpoint    = RequestURLSlug + "/auth/token"

	// ExpandAll asks the API to inline every expandable property.
	ExpandAll = "?expand=*"
)

// Header values.
const (
	AcceptJSON      = "application/json"
	FormContentType = "application/x-www-form-urlencoded"
)

// Credential defaults.
const (
	DefaultGrantType = "password"
	DefaultClientID  = "Default"
)

// ContentPath returns the fully expanded content path for a content link id.
func ContentPath(id int) string {
	return ContentEndpoint + strconv.Itoa(id) + ExpandAll
}
