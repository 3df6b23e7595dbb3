package extension_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mindburn-labs/doccore/pkg/extension"
	"github.com/mindburn-labs/doccore/pkg/plugin"
	"github.com/mindburn-labs/doccore/pkg/schema"
	"github.com/mindburn-labs/doccore/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codeDecls() ([]extension.NodeDecl, []extension.MarkDecl) {
	nodes := []extension.NodeDecl{
		{Name: "doc", Spec: schema.NodeSpec{Content: "paragraph+"}},
		{Name: "paragraph", Spec: schema.NodeSpec{Content: "text*"}},
		{Name: "text", Spec: schema.NodeSpec{}},
	}
	marks := []extension.MarkDecl{{Name: "strong", Spec: schema.MarkSpec{}}}
	return nodes, marks
}

func TestBuild_CodeDeclaredOnly(t *testing.T) {
	mgr := extension.NewManager(nil)
	nodes, marks := codeDecls()
	result, err := mgr.Build(nodes, marks, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Schema.Nodes, "paragraph")
	assert.Contains(t, result.Schema.Marks, "strong")
}

func TestBuild_XMLOverlayWinsOnConflict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.xml")
	xmlBody := `<schema>
  <node name="paragraph" content="text*" marks="_"></node>
</schema>`
	require.NoError(t, os.WriteFile(path, []byte(xmlBody), 0o644))

	mgr := extension.NewManager([]string{path})
	nodes, marks := codeDecls()
	result, err := mgr.Build(nodes, marks, nil)
	require.NoError(t, err)

	para := result.Schema.Nodes["paragraph"]
	require.NotNil(t, para)
	assert.Nil(t, para.MarkSet, "marks=\"_\" from the XML overlay means any mark is allowed")
}

func TestBuild_GlobalAttributeInjected(t *testing.T) {
	mgr := extension.NewManager(nil)
	nodes, marks := codeDecls()
	ext := extension.Extension{
		GlobalAttributes: []extension.GlobalAttribute{
			{Name: "trackedId", Spec: schema.AttrSpec{Default: "", HasDefault: true}, Types: []string{"paragraph"}},
		},
	}
	result, err := mgr.Build(nodes, marks, []extension.Extension{ext})
	require.NoError(t, err)

	para := result.Schema.Nodes["paragraph"]
	require.NotNil(t, para)
	assert.Contains(t, para.DefaultAttrs, "trackedId")
}

func TestBuild_ExtensionPluginsAndOpFnsAlwaysAdded(t *testing.T) {
	mgr := extension.NewManager(nil)
	nodes, marks := codeDecls()
	applied := false
	ext := extension.Extension{
		Plugins: []*plugin.Plugin{plugin.New(plugin.Spec{Metadata: plugin.Metadata{Name: "tracker"}})},
		OpFns:   []extension.OpFn{func(rm *state.ResourceManager) { applied = true }},
	}
	result, err := mgr.Build(nodes, marks, []extension.Extension{ext})
	require.NoError(t, err)
	require.Len(t, result.Plugins, 1)
	assert.Equal(t, "tracker", result.Plugins[0].Key)

	result.ApplyOpFns(state.NewResourceManager())
	assert.True(t, applied)
}

func TestBuild_XMLAttrSchemaValidationRejectsBadDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.xml")
	xmlBody := `<schema>
  <node name="text">
    <attr name="level">
      <default>5</default>
      <schema>{"type":"string"}</schema>
    </attr>
  </node>
</schema>`
	require.NoError(t, os.WriteFile(path, []byte(xmlBody), 0o644))

	mgr := extension.NewManager([]string{path})
	nodes, marks := codeDecls()
	_, err := mgr.Build(nodes, marks, nil)
	require.Error(t, err)
}

func TestBuild_XMLAttrSchemaValidationAcceptsGoodDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.xml")
	xmlBody := `<schema>
  <node name="text">
    <attr name="level">
      <default>"info"</default>
      <schema>{"type":"string"}</schema>
    </attr>
  </node>
</schema>`
	require.NoError(t, os.WriteFile(path, []byte(xmlBody), 0o644))

	mgr := extension.NewManager([]string{path})
	nodes, marks := codeDecls()
	result, err := mgr.Build(nodes, marks, nil)
	require.NoError(t, err)
	textType := result.Schema.Nodes["text"]
	assert.Equal(t, "info", textType.DefaultAttrs["level"])
}

func TestSortedPluginNames(t *testing.T) {
	r := &extension.Result{Plugins: []*plugin.Plugin{
		plugin.New(plugin.Spec{Metadata: plugin.Metadata{Name: "zed"}}),
		plugin.New(plugin.Spec{Metadata: plugin.Metadata{Name: "alpha"}}),
	}}
	assert.Equal(t, []string{"alpha", "zed"}, r.SortedPluginNames())
}
