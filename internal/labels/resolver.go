// Package labels resolves which work-category labels apply to a project.
//
// Categories come from a global default set, optionally overridden per named
// space (a group of projects). The table is built once at startup and is
// read-only afterwards, so a single *Table can be shared by every calculation.
package labels

import (
	"sort"
)

// GlobalGroup is the group name reported for categories of the global set.
const GlobalGroup = "Global"

// Category describes one work-category label.
type Category struct {
	Label       string `json:"label" yaml:"label"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Group       string `json:"group" yaml:"group"`
}

// Space is a named group of projects sharing an override category set.
type Space struct {
	Name       string
	Projects   []string
	Categories []Category
}

// Table is the resolved, immutable project -> categories mapping.
type Table struct {
	global       []Category
	spaces       map[string][]Category
	projectSpace map[string]string
	metadata     map[string]Category
}

// NewTable builds a Table from the global categories and the space overrides.
// Categories without a label are ignored. When a project is listed in more
// than one space the last space wins.
func NewTable(global []Category, spaces []Space) *Table {
	t := &Table{
		spaces:       make(map[string][]Category),
		projectSpace: make(map[string]string),
		metadata:     make(map[string]Category),
	}

	for _, c := range global {
		if c.Label == "" {
			continue
		}
		c = normalize(c, GlobalGroup)
		t.global = append(t.global, c)
		t.metadata[c.Label] = c
	}

	for _, s := range spaces {
		var cats []Category
		for _, c := range s.Categories {
			if c.Label == "" {
				continue
			}
			c = normalize(c, s.Name)
			cats = append(cats, c)
			t.metadata[c.Label] = c
		}
		t.spaces[s.Name] = cats
		for _, p := range s.Projects {
			t.projectSpace[p] = s.Name
		}
	}

	return t
}

func normalize(c Category, group string) Category {
	if c.Name == "" {
		c.Name = c.Label
	}
	c.Group = group
	return c
}

// SpaceOf returns the space a project belongs to.
func (t *Table) SpaceOf(project string) (string, bool) {
	s, ok := t.projectSpace[project]
	return s, ok
}

// CategoriesFor returns the ordered categories that apply to a project: the
// space override when the project belongs to a space that defines any, the
// global set otherwise.
func (t *Table) CategoriesFor(project string) []Category {
	if space, ok := t.projectSpace[project]; ok {
		if cats := t.spaces[space]; len(cats) > 0 {
			return cats
		}
	}
	return t.global
}

// LabelsFor returns the category labels for a project in configuration order.
func (t *Table) LabelsFor(project string) []string {
	cats := t.CategoriesFor(project)
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		out = append(out, c.Label)
	}
	return out
}

// Set returns the labels for a project as a lookup set.
func (t *Table) Set(project string) map[string]struct{} {
	cats := t.CategoriesFor(project)
	set := make(map[string]struct{}, len(cats))
	for _, c := range cats {
		set[c.Label] = struct{}{}
	}
	return set
}

// LabelsForProjects returns the sorted union of labels for the given
// projects, falling back to the global set when the union is empty.
func (t *Table) LabelsForProjects(projects []string) []string {
	seen := make(map[string]struct{})
	for _, p := range projects {
		for _, c := range t.CategoriesFor(p) {
			seen[c.Label] = struct{}{}
		}
	}
	if len(seen) == 0 {
		for _, c := range t.global {
			seen[c.Label] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the metadata of a label.
func (t *Table) Lookup(label string) (Category, bool) {
	c, ok := t.metadata[label]
	return c, ok
}

// Metadata returns a copy of the label -> category metadata.
func (t *Table) Metadata() map[string]Category {
	out := make(map[string]Category, len(t.metadata))
	for k, v := range t.metadata {
		out[k] = v
	}
	return out
}
