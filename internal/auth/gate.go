package auth

// Gate validates API keys against a fixed allow-list. When disabled it
// admits every request, including ones with no key at all.
type Gate struct {
	enabled bool
	keys    map[string]struct{}
}

// NewGate copies keys so later mutation of the input slice cannot change
// the admission decision.
func NewGate(enabled bool, keys []string) *Gate {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return &Gate{enabled: enabled, keys: set}
}

// Authorize reports whether a request presenting key may proceed.
func (g *Gate) Authorize(key string) bool {
	if !g.enabled {
		return true
	}
	if key == "" {
		return false
	}
	_, ok := g.keys[key]
	return ok
}

// Enabled reports whether the gate is enforcing.
func (g *Gate) Enabled() bool { return g.enabled }
