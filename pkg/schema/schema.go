// Package schema compiles a SchemaSpec (node/mark definitions, content
// expressions, attribute defaults) into a Schema with resolved
// ContentMatch automata, per spec.md §3/§4.2.
package schema

import (
	"fmt"
	"sort"
)

// AttrSpec declares one attribute of a node or mark type. An attribute
// with no Default is required: every instance must supply a value.
type AttrSpec struct {
	Default  any
	HasDefault bool
}

// NodeSpec is the uncompiled definition of one node type.
type NodeSpec struct {
	Content string // content expression (spec.md §4.2 grammar)
	Marks   string // space-separated mark type names, or "_" for any (mark groups are not supported)
	Group   string
	Attrs   map[string]AttrSpec
}

// MarkSpec is the uncompiled definition of one mark type.
type MarkSpec struct {
	Attrs map[string]AttrSpec
}

// SchemaSpec is the uncompiled schema document (spec.md §3).
type SchemaSpec struct {
	Nodes   map[string]NodeSpec
	Marks   map[string]MarkSpec
	TopNode string // defaults to "doc"
}

// NodeType is a compiled node type: parsed ContentMatch, resolved mark
// set, default-attrs table.
type NodeType struct {
	Name         string
	Spec         NodeSpec
	Groups       []string
	Attrs        map[string]AttrSpec
	DefaultAttrs map[string]any
	ContentMatch *ContentMatch
	MarkSet      []string // nil means "_" (any mark allowed)
}

// MarkType is a compiled mark type.
type MarkType struct {
	Name  string
	Spec  MarkSpec
	Attrs map[string]AttrSpec
}

// Schema is the compiled type system for nodes and marks.
type Schema struct {
	Nodes   map[string]*NodeType
	Marks   map[string]*MarkType
	TopNode string
	groups  map[string][]string // group name -> member node type names
}

// Compile validates and compiles a SchemaSpec into a Schema. Every
// violation here used to be a panic in the original implementation
// (spec.md §9); here every failure is an explicit *ValidationError.
func Compile(spec SchemaSpec) (*Schema, error) {
	top := spec.TopNode
	if top == "" {
		top = "doc"
	}

	for name := range spec.Nodes {
		if _, collide := spec.Marks[name]; collide {
			return nil, newValidationErr(KindNameCollision, name, "name is declared as both a node and a mark")
		}
	}

	s := &Schema{
		Nodes:   make(map[string]*NodeType, len(spec.Nodes)),
		Marks:   make(map[string]*MarkType, len(spec.Marks)),
		TopNode: top,
		groups:  make(map[string][]string),
	}

	for name, ns := range spec.Nodes {
		nt := &NodeType{Name: name, Spec: ns, Attrs: ns.Attrs}
		if ns.Group != "" {
			nt.Groups = []string{ns.Group}
			s.groups[ns.Group] = append(s.groups[ns.Group], name)
		}
		defaults := make(map[string]any)
		for attrName, attrSpec := range ns.Attrs {
			if attrSpec.HasDefault {
				defaults[attrName] = attrSpec.Default
			}
		}
		nt.DefaultAttrs = defaults
		s.Nodes[name] = nt
	}
	for name, ms := range spec.Marks {
		s.Marks[name] = &MarkType{Name: name, Spec: ms, Attrs: ms.Attrs}
	}

	if _, ok := s.Nodes[top]; !ok {
		return nil, newValidationErr(KindBadTopNode, top, "top_node does not resolve to a declared node type")
	}

	expandType := func(token string) ([]string, error) {
		if _, ok := s.Nodes[token]; ok {
			return []string{token}, nil
		}
		if members, ok := s.groups[token]; ok {
			return append([]string(nil), members...), nil
		}
		return nil, newValidationErr(KindUnknownType, token, "content expression references an undeclared node type or group")
	}

	for name, nt := range s.Nodes {
		if nt.Spec.Content == "" {
			nt.ContentMatch = emptyContentMatch()
			continue
		}
		expr, err := parseContentExpr(nt.Spec.Content)
		if err != nil {
			return nil, err
		}
		cm, err := buildContentMatch(expr, expandType)
		if err != nil {
			return nil, fmt.Errorf("compiling content expression for node %q: %w", name, err)
		}
		nt.ContentMatch = cm
	}

	for name, nt := range s.Nodes {
		markSet, err := s.gatherMarks(nt.Spec.Marks)
		if err != nil {
			return nil, fmt.Errorf("resolving marks for node %q: %w", name, err)
		}
		nt.MarkSet = markSet
	}

	return s, nil
}

func emptyContentMatch() *ContentMatch {
	return &ContentMatch{
		start:  0,
		states: []*matchState{{validEnd: true, transitions: map[string]int{}}},
	}
}

// gatherMarks resolves "_" to a nil result (any mark allowed), an empty
// spec to an empty list (no marks allowed), and a space-separated list of
// mark type names to those names, sorted (spec.md §4.2). Mark groups are
// not resolved: any token that is not a declared mark type name is an
// UnknownType error.
func (s *Schema) gatherMarks(spec string) ([]string, error) {
	if spec == "" {
		return []string{}, nil
	}
	if spec == "_" {
		return nil, nil // any mark allowed
	}
	var names []string
	for _, tok := range splitMarkTokens(spec) {
		if _, ok := s.Marks[tok]; ok {
			names = append(names, tok)
			continue
		}
		return nil, newValidationErr(KindUnknownType, tok, "mark group references an undeclared mark type")
	}
	sort.Strings(names)
	return names, nil
}

func splitMarkTokens(spec string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = nil
		}
	}
	for _, r := range spec {
		if r == ' ' {
			flush()
			continue
		}
		cur = append(cur, r)
	}
	flush()
	return out
}

// AllowsMark reports whether nt permits a mark of the given type.
func (nt *NodeType) AllowsMark(markType string) bool {
	if nt.MarkSet == nil {
		return true // "_" = any
	}
	for _, m := range nt.MarkSet {
		if m == markType {
			return true
		}
	}
	return false
}

// CheckAttrs rejects values for undefined attrs and reports missing values
// for required attrs (spec.md §4.2). Never panics.
func (nt *NodeType) CheckAttrs(values map[string]any) error {
	for key := range values {
		if _, ok := nt.Attrs[key]; !ok {
			return newValidationErr(KindUnknownAttr, nt.Name+"."+key, "attribute is not defined on this node type")
		}
	}
	for key, spec := range nt.Attrs {
		if spec.HasDefault {
			continue
		}
		if _, ok := values[key]; !ok {
			return newValidationErr(KindMissingRequired, nt.Name+"."+key, "required attribute has no default and no value was provided")
		}
	}
	return nil
}

// ComputeAttrs fills in defaults for any unprovided attribute. A required
// attribute with no default and no provided value is a schema-contract
// violation: it is returned as an error, never silently dropped or
// panicked (spec.md §4.2, §9).
func (nt *NodeType) ComputeAttrs(provided map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(nt.Attrs))
	for key, spec := range nt.Attrs {
		if v, ok := provided[key]; ok {
			out[key] = v
			continue
		}
		if spec.HasDefault {
			out[key] = spec.Default
			continue
		}
		return nil, newValidationErr(KindMissingRequired, nt.Name+"."+key, "required attribute has no default and none was provided")
	}
	for key, v := range provided {
		if _, declared := nt.Attrs[key]; !declared {
			continue // unknown keys are rejected by CheckAttrs, not silently added here
		}
		out[key] = v
	}
	return out, nil
}
