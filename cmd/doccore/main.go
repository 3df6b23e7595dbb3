// Command doccore is a thin illustrative CLI over the core packages: it
// builds a tiny schema through the extension manager, dispatches a couple
// of transactions through a Runtime, and prints the resulting document.
// It is not a product surface — see pkg/runtime, pkg/state, pkg/transform
// for the actual library entry points.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mindburn-labs/doccore/pkg/config"
	"github.com/mindburn-labs/doccore/pkg/extension"
	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/plugin"
	"github.com/mindburn-labs/doccore/pkg/runtime"
	"github.com/mindburn-labs/doccore/pkg/schema"
	"github.com/mindburn-labs/doccore/pkg/state"
	"github.com/mindburn-labs/doccore/pkg/transform"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runDemo(args, stdout, stderr)
	}
	switch args[1] {
	case "run", "demo":
		return runDemo(args, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, "doccore v0.1.0")
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "doccore - transactional document-model runtime")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  doccore <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  run       Build a tiny doc, dispatch two transactions, undo, print state (default)")
	fmt.Fprintln(w, "  version   Show version")
	fmt.Fprintln(w, "  help      Show this help")
}

// runDemo wires the whole stack end-to-end against an in-memory schema:
// Extension Manager -> Configuration -> Runtime -> dispatch -> undo.
func runDemo(args []string, stdout, _ io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config file")
	var rest []string
	if len(args) > 2 {
		rest = args[2:]
	}
	_ = fs.Parse(rest)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stdout, "config load failed: %v\n", err)
		return 1
	}
	logger := slog.Default()

	mgr := extension.NewManager(cfg.Extension.XMLSchemaPaths)
	result, err := mgr.Build(
		[]extension.NodeDecl{
			{Name: "doc", Spec: schema.NodeSpec{Content: "paragraph+"}},
			{Name: "paragraph", Spec: schema.NodeSpec{Content: "text*", Marks: "_"}},
			{Name: "text", Spec: schema.NodeSpec{
				Attrs: map[string]schema.AttrSpec{"text": {Default: "", HasDefault: true}},
			}},
		},
		[]extension.MarkDecl{
			{Name: "strong"},
		},
		nil,
	)
	if err != nil {
		fmt.Fprintf(stdout, "extension build failed: %v\n", err)
		return 1
	}

	root := &model.Node{ID: model.NewNodeId(), Type: "doc"}
	doc := model.NewPool(root)

	plugins, err := plugin.NewBuilder().Build()
	if err != nil {
		fmt.Fprintf(stdout, "plugin build failed: %v\n", err)
		return 1
	}

	resources := state.NewResourceManager()
	result.ApplyOpFns(resources)

	st := &state.Configuration{
		Schema:      result.Schema,
		Doc:         doc,
		Plugins:     plugins,
		Resources:   resources,
		Performance: cfg.ToPerformanceConfig(),
	}

	rt := runtime.Create(st, nil, cfg.ToRuntimeOptions(), logger)
	defer rt.Destroy(context.Background())

	ctx := context.Background()

	tx1 := transform.New(rt.Doc(), rt.GetSchema(), 0)
	para := &model.Node{ID: model.NewNodeId(), Type: "paragraph"}
	text := &model.Node{ID: model.NewNodeId(), Type: "text", Attrs: model.Attrs{"text": "hello world"}}
	if _, err := tx1.Step(&transform.AddNodeStep{
		Parent: root.ID,
		Nodes:  []transform.NodeTree{{Node: para, Children: []transform.NodeTree{{Node: text}}}},
	}); err != nil {
		fmt.Fprintf(stdout, "add node failed: %v\n", err)
		return 1
	}
	if _, err := rt.Dispatch(ctx, tx1); err != nil {
		fmt.Fprintf(stdout, "dispatch failed: %v\n", err)
		return 1
	}

	tx2 := transform.New(rt.Doc(), rt.GetSchema(), 0)
	if _, err := tx2.Step(&transform.AttrStep{ID: text.ID, Values: model.Attrs{"text": "hello, doccore"}}); err != nil {
		fmt.Fprintf(stdout, "attr step failed: %v\n", err)
		return 1
	}
	if _, err := rt.Dispatch(ctx, tx2); err != nil {
		fmt.Fprintf(stdout, "dispatch failed: %v\n", err)
		return 1
	}

	printDoc(stdout, "after two dispatches", rt)

	if _, ok := rt.Undo(ctx); ok {
		printDoc(stdout, "after undo", rt)
	}

	return 0
}

func printDoc(w io.Writer, label string, rt *runtime.Runtime) {
	st := rt.GetState()
	out := map[string]any{
		"label":   label,
		"version": st.Version,
		"doc":     st.Doc(),
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Fprintln(w, string(data))
}
