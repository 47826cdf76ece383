package cache

// ScopedKeyer wraps a Keyer with a prefix for isolation between sites
// that share one cache backend.
//
// Example usage:
//
//	// Keys for the staging site
//	staging := NewScopedKeyer(NewDefaultKeyer(), "staging:")
//
//	// Keys for production
//	production := NewScopedKeyer(NewDefaultKeyer(), "production:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// EndpointKey generates a prefixed endpoint key.
func (k *ScopedKeyer) EndpointKey(scope, nodeName, endpoint string) string {
	return k.prefix + k.inner.EndpointKey(scope, nodeName, endpoint)
}

// ContentKey generates a prefixed content key.
func (k *ScopedKeyer) ContentKey(scope string, id int) string {
	return k.prefix + k.inner.ContentKey(scope, id)
}
