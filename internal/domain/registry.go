package domain

// Registry holds the enabled adapters in registration order.
//
// Order is part of the contract: when two adapters recognize the same URL,
// the one registered first wins.
type Registry struct {
	adapters []Adapter
}

// NewRegistry keeps the enabled adapters, in the order given.
func NewRegistry(adapters ...Adapter) *Registry {
	enabled := make([]Adapter, 0, len(adapters))
	for _, a := range adapters {
		if a == nil || !a.Enabled() {
			continue
		}
		enabled = append(enabled, a)
	}
	return &Registry{adapters: enabled}
}

// Match returns the first adapter recognizing the URL, or nil.
func (r *Registry) Match(rawURL, domainHint string) Adapter {
	for _, a := range r.adapters {
		if a.Recognizes(rawURL, domainHint) {
			return a
		}
	}
	return nil
}

// Len returns the number of enabled adapters.
func (r *Registry) Len() int {
	return len(r.adapters)
}

// Names returns the enabled adapter names in match order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		names = append(names, a.Name())
	}
	return names
}
