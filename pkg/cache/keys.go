package cache

// indexFormat versions the serialized impact index. Bump it when the layout
// changes so old entries are never decoded.
const indexFormat = 1

// Keyer builds cache keys.
type Keyer interface {
	// IndexKey is the key of the impact index built from the topology with
	// the given hash.
	IndexKey(topologyHash string) string
}

// DefaultKeyer builds unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// IndexKey implements [Keyer].
func (DefaultKeyer) IndexKey(topologyHash string) string {
	return hashKey("index", topologyHash, indexFormat)
}

// ScopedKeyer prefixes another keyer's keys, so several projects can share
// one Redis instance.
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer wraps inner. A nil inner means [DefaultKeyer].
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// IndexKey implements [Keyer].
func (k *ScopedKeyer) IndexKey(topologyHash string) string {
	return k.prefix + k.inner.IndexKey(topologyHash)
}
