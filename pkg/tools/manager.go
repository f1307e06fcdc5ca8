package tools

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrToolNotFound = errors.New("tool not found")

// Registry maps tool ids (and their advertised names) to tools. It is
// built once and never changes afterwards.
type Registry struct {
	tools map[string]Tool
	order []Tool
}

// NewRegistry registers tools under both their ID and Name. Any collision is
// an error.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(ts)*2)}
	for _, t := range ts {
		d := t.Descriptor()
		if d.ID == "" {
			return nil, fmt.Errorf("tool without an id: %q", d.Name)
		}
		for _, key := range keys(d) {
			if _, exists := r.tools[key]; exists {
				return nil, fmt.Errorf("tool %q already registered", key)
			}
			r.tools[key] = t
		}
		r.order = append(r.order, t)
	}
	slices.SortFunc(r.order, func(a, b Tool) int {
		return strings.Compare(a.Descriptor().ID, b.Descriptor().ID)
	})
	return r, nil
}

func keys(d Descriptor) []string {
	if d.Name == "" || d.Name == d.ID {
		return []string{d.ID}
	}
	return []string{d.ID, d.Name}
}

// List returns all registered tools ordered by id.
func (r *Registry) List() []Tool {
	return slices.Clone(r.order)
}

// Lookup retrieves a tool by id or name.
func (r *Registry) Lookup(id string) (Tool, bool) {
	t, ok := r.tools[id]
	return t, ok
}

// GetTool retrieves a tool by id or name.
func (r *Registry) GetTool(id string) (Tool, error) {
	t, ok := r.tools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, id)
	}
	return t, nil
}
