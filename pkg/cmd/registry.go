package cmd

import (
	"sort"
	"strings"
)

// Registry stores commands by name and resolves prefixed input lines.
// Register everything before the registry is shared between goroutines.
type Registry struct {
	prefix   string
	commands map[string]Command
}

// NewRegistry returns an empty registry that recognizes lines starting with
// prefix, e.g. "!" for "!mood".
func NewRegistry(prefix string) *Registry {
	return &Registry{prefix: prefix, commands: make(map[string]Command)}
}

func (r *Registry) Prefix() string { return r.prefix }

// Register adds c, wrapped by mws. The first middleware is the outermost.
func (r *Registry) Register(c Command, mws ...Middleware) {
	r.commands[strings.ToLower(c.Name())] = Apply(c, mws...)
}

// Get returns the command with the given name, or nil.
func (r *Registry) Get(name string) Command {
	return r.commands[strings.ToLower(name)]
}

// All returns every command sorted by name.
func (r *Registry) All() []Command {
	list := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}

// Parse resolves a line such as "!mood now". ok is false when the line does
// not carry the prefix. A prefixed line naming an unknown command returns a
// nil Command with ok true.
func (r *Registry) Parse(line string) (c Command, args []string, ok bool) {
	line = strings.TrimSpace(line)
	if r.prefix == "" || !strings.HasPrefix(line, r.prefix) {
		return nil, nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(line, r.prefix))
	if len(fields) == 0 {
		return nil, nil, true
	}
	return r.Get(fields[0]), fields[1:], true
}
