// Package extension implements the Extension Manager (spec.md §4.7): it
// merges XML-schema-declared node/mark specifications with code-declared
// nodes, marks, and extensions (plugins + global attributes + op-fns) into
// a single compiled schema.Schema, plugin list, and op-fn set. Grounded on
// the teacher's pkg/policyloader/loader.go — load + validate + merge an
// external declarative document with code-declared objects, generalized
// from JSON policy bundles to XML schema files.
package extension

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mindburn-labs/doccore/pkg/plugin"
	"github.com/mindburn-labs/doccore/pkg/schema"
	"github.com/mindburn-labs/doccore/pkg/state"
)

// NodeDecl is a code-declared node type (spec.md §4.7 "Extensions::N(Node)").
type NodeDecl struct {
	Name string
	Spec schema.NodeSpec
}

// MarkDecl is a code-declared mark type ("Extensions::M(Mark)").
type MarkDecl struct {
	Name string
	Spec schema.MarkSpec
}

// GlobalAttribute is added to every node type named in Types, during
// schema compilation ("Extensions::E(Extension).global_attributes").
type GlobalAttribute struct {
	Name  string
	Spec  schema.AttrSpec
	Types []string
}

// OpFn is applied to the resource manager at state creation (spec.md §4.7
// "a list of op-fns applied to the resource manager at state creation").
type OpFn func(rm *state.ResourceManager)

// Extension bundles everything an "Extensions::E(Extension)" contributes:
// always-added plugins, global attributes, and op-fns.
type Extension struct {
	Plugins          []*plugin.Plugin
	GlobalAttributes []GlobalAttribute
	OpFns            []OpFn
}

// Result is the Extension Manager's output (spec.md §4.7 "Output:").
type Result struct {
	Schema  *schema.Schema
	Plugins []*plugin.Plugin // declaration order, prior to DAG sorting
	OpFns   []OpFn
}

// ApplyOpFns runs every op-fn against rm, in declaration order. Called once
// at state creation (spec.md §4.6 create()).
func (r *Result) ApplyOpFns(rm *state.ResourceManager) {
	for _, fn := range r.OpFns {
		fn(rm)
	}
}

// Manager merges XML schema files with code-declared nodes/marks/
// extensions. The zero value is usable; XMLSchemaPaths defaults to
// ["schema/main.xml"] when empty and that file exists.
type Manager struct {
	XMLSchemaPaths []string
	TopNode        string
}

// NewManager builds a Manager reading xmlSchemaPaths (spec.md §6.6
// `extension.xml_schema_paths`).
func NewManager(xmlSchemaPaths []string) *Manager {
	return &Manager{XMLSchemaPaths: xmlSchemaPaths}
}

// Build merges codeNodes/codeMarks/extensions with any configured XML
// schema files and compiles the result (spec.md §4.7 merge policy).
func (m *Manager) Build(codeNodes []NodeDecl, codeMarks []MarkDecl, extensions []Extension) (*Result, error) {
	nodes := make(map[string]schema.NodeSpec, len(codeNodes))
	for _, d := range codeNodes {
		nodes[d.Name] = d.Spec
	}
	marks := make(map[string]schema.MarkSpec, len(codeMarks))
	for _, d := range codeMarks {
		marks[d.Name] = d.Spec
	}

	xmlDoc, err := m.loadXML()
	if err != nil {
		return nil, err
	}
	if xmlDoc != nil {
		// XML-declared nodes/marks take precedence: they overwrite any
		// code-declared entry of the same name (spec.md §4.7).
		for _, n := range xmlDoc.Nodes {
			spec, err := n.toSpec()
			if err != nil {
				return nil, fmt.Errorf("extension: xml node %q: %w", n.Name, err)
			}
			nodes[n.Name] = spec
		}
		for _, mk := range xmlDoc.Marks {
			spec, err := mk.toSpec()
			if err != nil {
				return nil, fmt.Errorf("extension: xml mark %q: %w", mk.Name, err)
			}
			marks[mk.Name] = spec
		}
	}

	var plugins []*plugin.Plugin
	var opFns []OpFn
	for _, ext := range extensions {
		// Extension plugins are always added, regardless of XML presence.
		plugins = append(plugins, ext.Plugins...)
		opFns = append(opFns, ext.OpFns...)
		for _, ga := range ext.GlobalAttributes {
			for _, typeName := range ga.Types {
				ns, ok := nodes[typeName]
				if !ok {
					continue
				}
				if ns.Attrs == nil {
					ns.Attrs = map[string]schema.AttrSpec{}
				}
				ns.Attrs[ga.Name] = ga.Spec
				nodes[typeName] = ns
			}
		}
	}

	top := m.TopNode
	if top == "" {
		top = "doc"
	}
	sch, err := schema.Compile(schema.SchemaSpec{Nodes: nodes, Marks: marks, TopNode: top})
	if err != nil {
		return nil, fmt.Errorf("extension: schema compile: %w", err)
	}

	return &Result{Schema: sch, Plugins: plugins, OpFns: opFns}, nil
}

// loadXML reads and parses the configured XML schema files, in order,
// later files overlaying earlier ones on name conflicts. Returns (nil, nil)
// when no paths are configured and the default schema/main.xml is absent.
func (m *Manager) loadXML() (*xmlSchemaDoc, error) {
	paths := m.XMLSchemaPaths
	usingDefault := false
	if len(paths) == 0 {
		paths = []string{"schema/main.xml"}
		usingDefault = true
	}

	merged := &xmlSchemaDoc{}
	found := false
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) && usingDefault {
				continue
			}
			return nil, fmt.Errorf("extension: read %s: %w", path, err)
		}
		found = true
		var doc xmlSchemaDoc
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("extension: parse %s: %w", path, err)
		}
		merged.Nodes = append(merged.Nodes, doc.Nodes...)
		merged.Marks = append(merged.Marks, doc.Marks...)
	}
	if !found {
		return nil, nil
	}
	return merged, nil
}

type xmlSchemaDoc struct {
	XMLName xml.Name  `xml:"schema"`
	Nodes   []xmlNode `xml:"node"`
	Marks   []xmlMark `xml:"mark"`
}

type xmlNode struct {
	Name    string    `xml:"name,attr"`
	Content string    `xml:"content,attr"`
	Marks   string    `xml:"marks,attr"`
	Group   string    `xml:"group,attr"`
	Attrs   []xmlAttr `xml:"attr"`
}

type xmlMark struct {
	Name  string    `xml:"name,attr"`
	Attrs []xmlAttr `xml:"attr"`
}

// xmlAttr declares one attribute. Default, when present, is a JSON literal
// (e.g. `"0"`, `"\"\""`, `"null"`); Schema, when present, is an inline JSON
// Schema the default must validate against — external schema files are
// untrusted input, so this is checked eagerly at load time rather than
// deferred to first use.
type xmlAttr struct {
	Name     string `xml:"name,attr"`
	Default  string `xml:"default"`
	Required bool   `xml:"required,attr"`
	Schema   string `xml:"schema"`
}

func (n xmlNode) toSpec() (schema.NodeSpec, error) {
	attrs, err := buildAttrs(n.Attrs)
	if err != nil {
		return schema.NodeSpec{}, err
	}
	return schema.NodeSpec{Content: n.Content, Marks: n.Marks, Group: n.Group, Attrs: attrs}, nil
}

func (mk xmlMark) toSpec() (schema.MarkSpec, error) {
	attrs, err := buildAttrs(mk.Attrs)
	if err != nil {
		return schema.MarkSpec{}, err
	}
	return schema.MarkSpec{Attrs: attrs}, nil
}

func buildAttrs(decls []xmlAttr) (map[string]schema.AttrSpec, error) {
	if len(decls) == 0 {
		return nil, nil
	}
	attrs := make(map[string]schema.AttrSpec, len(decls))
	for _, a := range decls {
		if a.Required && a.Default != "" {
			return nil, fmt.Errorf("attr %q: required and default are mutually exclusive", a.Name)
		}
		if a.Required {
			attrs[a.Name] = schema.AttrSpec{}
			continue
		}
		var def any
		if err := json.Unmarshal([]byte(a.Default), &def); err != nil {
			return nil, fmt.Errorf("attr %q: default %q is not valid JSON: %w", a.Name, a.Default, err)
		}
		if a.Schema != "" {
			if err := validateAgainstSchema(a.Name, a.Schema, def); err != nil {
				return nil, err
			}
		}
		attrs[a.Name] = schema.AttrSpec{Default: def, HasDefault: true}
	}
	return attrs, nil
}

func validateAgainstSchema(attrName, schemaJSON string, value any) error {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	resourceName := fmt.Sprintf("https://doccore.schemas.local/extension/attr/%s.schema.json", attrName)
	if err := compiler.AddResource(resourceName, strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("attr %q: invalid schema: %w", attrName, err)
	}
	sch, err := compiler.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("attr %q: invalid schema: %w", attrName, err)
	}
	if err := sch.Validate(value); err != nil {
		return fmt.Errorf("attr %q: default fails its declared schema: %w", attrName, err)
	}
	return nil
}

// SortedPluginNames returns the keys of result's plugins sorted
// lexicographically. Useful for callers that want deterministic debug/log output
// without affecting the real DAG-sorted order the plugin manager applies.
func (r *Result) SortedPluginNames() []string {
	names := make([]string, len(r.Plugins))
	for i, p := range r.Plugins {
		names[i] = p.Key
	}
	sort.Strings(names)
	return names
}
