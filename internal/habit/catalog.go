// Package habit holds the closed catalog of trackable habits.
//
// The catalog is supplied once at startup from configuration. It never
// changes while the process runs, so lookups need no locking.
package habit

import "fmt"

type Catalog struct {
	names []string
	index map[string]int
}

// NewCatalog builds a catalog from the configured habit names,
// preserving declaration order. Duplicate names are rejected so that
// catalog order stays a total order.
func NewCatalog(names []string) (*Catalog, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("habit catalog is empty")
	}

	index := make(map[string]int, len(names))
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("habit catalog contains an empty name")
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate habit in catalog: %q", name)
		}
		index[name] = i
	}

	return &Catalog{names: append([]string(nil), names...), index: index}, nil
}

func (c *Catalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Names returns the habits in declaration order. Callers must not
// mutate the returned slice.
func (c *Catalog) Names() []string {
	return c.names
}

func (c *Catalog) Len() int {
	return len(c.names)
}
