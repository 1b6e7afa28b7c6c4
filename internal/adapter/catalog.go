package adapter

import (
	"github.com/robgonnella/hashwatch/internal/exception"
	"github.com/robgonnella/hashwatch/internal/miner"
)

// Catalog maps adapter kinds to their implementation. Adding a device family
// means registering one more Adapter here; nothing else dispatches on kind.
type Catalog struct {
	adapters map[miner.Kind]Adapter
}

// NewCatalog returns a catalog of the given adapters
func NewCatalog(adapters ...Adapter) *Catalog {
	c := &Catalog{
		adapters: map[miner.Kind]Adapter{},
	}

	for _, a := range adapters {
		c.adapters[a.Kind()] = a
	}

	return c
}

// Get returns the adapter for kind
func (c *Catalog) Get(kind miner.Kind) (Adapter, error) {
	a, ok := c.adapters[kind]

	if !ok {
		return nil, &miner.ValidationError{
			Code:    exception.ErrUnsupportedAdapterKind,
			Field:   "kind",
			Message: "no adapter registered for " + string(kind),
		}
	}

	return a, nil
}

// Ordered returns registered adapters in fingerprint priority order
func (c *Catalog) Ordered() []Adapter {
	ordered := []Adapter{}

	for _, k := range miner.Kinds {
		if a, ok := c.adapters[k]; ok {
			ordered = append(ordered, a)
		}
	}

	return ordered
}
