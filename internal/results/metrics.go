package results

// ToolMetrics is the fixed set of counters reported by the analysis tool for
// one invocation (or one target of an invocation).
type ToolMetrics struct {
	TermNodes            Value `json:"term_nodes"`
	TermEdges            Value `json:"term_edges"`
	TermHeight           Value `json:"term_height"`
	FeatureNodes         Value `json:"feature_nodes"`
	FeatureEdges         Value `json:"feature_edges"`
	FeatureSquashedEdges Value `json:"feature_squashed_edges"`
	ArtifactNodes        Value `json:"artifact_nodes"`
	ArtifactEdges        Value `json:"artifact_edges"`
}

// zeroMetrics has every counter measured as zero. Repository reductions start
// from it so a summary over no successful units reads 0, not N/A.
func zeroMetrics() ToolMetrics {
	return ToolMetrics{
		TermNodes:            Of(0),
		TermEdges:            Of(0),
		TermHeight:           Of(0),
		FeatureNodes:         Of(0),
		FeatureEdges:         Of(0),
		FeatureSquashedEdges: Of(0),
		ArtifactNodes:        Of(0),
		ArtifactEdges:        Of(0),
	}
}

// Merge folds o into m: node and edge counts are summed, the term height is
// the maximum.
func (m ToolMetrics) Merge(o ToolMetrics) ToolMetrics {
	return ToolMetrics{
		TermNodes:            m.TermNodes.Plus(o.TermNodes),
		TermEdges:            m.TermEdges.Plus(o.TermEdges),
		TermHeight:           m.TermHeight.Max(o.TermHeight),
		FeatureNodes:         m.FeatureNodes.Plus(o.FeatureNodes),
		FeatureEdges:         m.FeatureEdges.Plus(o.FeatureEdges),
		FeatureSquashedEdges: m.FeatureSquashedEdges.Plus(o.FeatureSquashedEdges),
		ArtifactNodes:        m.ArtifactNodes.Plus(o.ArtifactNodes),
		ArtifactEdges:        m.ArtifactEdges.Plus(o.ArtifactEdges),
	}
}

// Values returns the counters in display order.
func (m ToolMetrics) Values() []Value {
	return []Value{
		m.TermNodes, m.TermEdges, m.TermHeight,
		m.FeatureNodes, m.FeatureEdges, m.FeatureSquashedEdges,
		m.ArtifactNodes, m.ArtifactEdges,
	}
}

// MetricNames lists the column names matching ToolMetrics.Values.
var MetricNames = []string{
	"term_nodes", "term_edges", "term_height",
	"feature_nodes", "feature_edges", "feature_squashed_edges",
	"artifact_nodes", "artifact_edges",
}
