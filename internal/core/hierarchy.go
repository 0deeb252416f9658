package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidHierarchy = errors.New("invalid category hierarchy")

// CategoryGroup is a parent category and its ordered children.
type CategoryGroup struct {
	Name     string   `json:"name"`
	Children []string `json:"children"`
}

// CategoryHierarchy maps child categories to their single parent.
// A nil hierarchy treats every category as its own top-level bucket.
type CategoryHierarchy struct {
	groups   []CategoryGroup
	parentOf map[string]string
	parents  map[string]int
}

// NewCategoryHierarchy builds a two-level hierarchy. It rejects a child listed
// under two parents and a name used both as a parent and as a child.
func NewCategoryHierarchy(groups ...CategoryGroup) (*CategoryHierarchy, error) {
	h := &CategoryHierarchy{
		parentOf: make(map[string]string),
		parents:  make(map[string]int),
	}
	for _, g := range groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty parent name", ErrInvalidHierarchy)
		}
		if _, dup := h.parents[name]; dup {
			return nil, fmt.Errorf("%w: parent %q declared twice", ErrInvalidHierarchy, name)
		}
		group := CategoryGroup{Name: name}
		for _, child := range g.Children {
			child = strings.TrimSpace(child)
			if child == "" {
				continue
			}
			if owner, dup := h.parentOf[child]; dup {
				return nil, fmt.Errorf("%w: %q belongs to both %q and %q", ErrInvalidHierarchy, child, owner, name)
			}
			h.parentOf[child] = name
			group.Children = append(group.Children, child)
		}
		h.parents[name] = len(h.groups)
		h.groups = append(h.groups, group)
	}
	for _, g := range h.groups {
		if owner, nested := h.parentOf[g.Name]; nested {
			return nil, fmt.Errorf("%w: parent %q is also a child of %q", ErrInvalidHierarchy, g.Name, owner)
		}
	}
	return h, nil
}

// DefaultCategoryHierarchy is the stock Food/Transport/Entertainment grouping.
func DefaultCategoryHierarchy() *CategoryHierarchy {
	h, _ := NewCategoryHierarchy(
		CategoryGroup{Name: "Food", Children: []string{"Groceries", "Restaurants", "Cafes"}},
		CategoryGroup{Name: "Transport", Children: []string{"Fuel", "Public Transport", "Taxi"}},
		CategoryGroup{Name: "Entertainment", Children: []string{"Movies", "Concerts", "Games"}},
	)
	return h
}

// ParseCategoryHierarchy decodes a JSON list of {"name", "children"} groups.
func ParseCategoryHierarchy(data []byte) (*CategoryHierarchy, error) {
	var groups []CategoryGroup
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("decode category hierarchy: %w", err)
	}
	return NewCategoryHierarchy(groups...)
}

// Bucket returns the parent of a known child, otherwise the category itself.
func (h *CategoryHierarchy) Bucket(category string) string {
	if parent, ok := h.Parent(category); ok {
		return parent
	}
	return category
}

func (h *CategoryHierarchy) Parent(category string) (string, bool) {
	if h == nil {
		return "", false
	}
	parent, ok := h.parentOf[category]
	return parent, ok
}

func (h *CategoryHierarchy) IsParent(category string) bool {
	if h == nil {
		return false
	}
	_, ok := h.parents[category]
	return ok
}

// Known reports whether category is a declared parent or child.
func (h *CategoryHierarchy) Known(category string) bool {
	_, child := h.Parent(category)
	return child || h.IsParent(category)
}

func (h *CategoryHierarchy) Children(parent string) []string {
	if h == nil {
		return nil
	}
	i, ok := h.parents[parent]
	if !ok {
		return nil
	}
	return append([]string(nil), h.groups[i].Children...)
}

func (h *CategoryHierarchy) Groups() []CategoryGroup {
	if h == nil {
		return nil
	}
	out := make([]CategoryGroup, len(h.groups))
	for i, g := range h.groups {
		out[i] = CategoryGroup{Name: g.Name, Children: append([]string(nil), g.Children...)}
	}
	return out
}
