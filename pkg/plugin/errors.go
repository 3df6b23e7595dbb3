package plugin

import "fmt"

// Kind classifies a plugin registration/build failure (spec.md §4.5).
type Kind int

const (
	KindDuplicateName Kind = iota
	KindCircularDependency
	KindMissingDependency
	KindConflict
)

// BuildError is returned by PluginManagerBuilder.Build when registration or
// dependency analysis fails.
type BuildError struct {
	Kind    Kind
	Plugin  string
	Message string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("plugin %s: %s", e.Plugin, e.Message)
}

func newBuildErr(kind Kind, plugin, msg string) *BuildError {
	return &BuildError{Kind: kind, Plugin: plugin, Message: msg}
}
