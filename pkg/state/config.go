package state

import (
	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/plugin"
	"github.com/mindburn-labs/doccore/pkg/schema"
)

// PerformanceConfig holds the apply-pipeline tunables from spec.md §6.6's
// `performance` block that this package consults directly.
type PerformanceConfig struct {
	MaxAppendDepth int
}

// DefaultPerformanceConfig mirrors the spec's "default small, e.g. 8".
func DefaultPerformanceConfig() PerformanceConfig {
	return PerformanceConfig{MaxAppendDepth: 8}
}

// Configuration is the shared, versionless configuration a State is built
// from (spec.md §3, §4.4).
type Configuration struct {
	Schema      *schema.Schema
	Doc         *model.NodePool
	Plugins     *plugin.Manager
	Resources   *ResourceManager
	Performance PerformanceConfig
}
