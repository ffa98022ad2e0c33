package transport

import (
	"fmt"
	"sort"
)

// factories maps transport names to constructors. Optional transports register
// themselves from build-tagged files.
var factories = map[string]func() SocketFactory{
	"mangos": func() SocketFactory { return NewMangosFactory() },
}

// NewFactory returns the socket factory registered under name
func NewFactory(name string) (SocketFactory, error) {
	if name == "" {
		name = "mangos"
	}
	mk, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown transport %q (available: %v)", name, Available())
	}
	return mk(), nil
}

// Available lists the transports compiled into this binary
func Available() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
