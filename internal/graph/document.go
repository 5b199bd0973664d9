package graph

// Document is the raw declarative block-graph document as unmarshaled from
// YAML, matching the schema in spec section 6. It is never consulted after
// Load succeeds — the validated Graph is built from it once and then the
// Document is discarded.
type Document struct {
	BlockGraph DocumentBody `yaml:"block_graph"`
}

type DocumentBody struct {
	RootNode string                  `yaml:"root_node"`
	Nodes    map[string]DocumentNode `yaml:"nodes"`
	Edges    []DocumentEdge          `yaml:"edges"`
}

// ConditionEntry is either a bare expression string or a
// {name, expression, description} mapping — spec section 6 allows both
// shapes for entry_conditions/exit_conditions list entries.
type ConditionEntry struct {
	Name        string
	Expression  string
	Description string
}

// UnmarshalYAML accepts either a scalar string or a mapping.
func (c *ConditionEntry) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		c.Expression = s
		return nil
	}
	var m struct {
		Name        string `yaml:"name"`
		Expression  string `yaml:"expression"`
		Description string `yaml:"description"`
	}
	if err := unmarshal(&m); err != nil {
		return err
	}
	c.Name, c.Expression, c.Description = m.Name, m.Expression, m.Description
	return nil
}

// rawHighlightCondition is the YAML shape of a node's highlight_condition,
// before Parameters is unpacked into the validated HighlightCondition in
// graph.go (required_spot_count, consecutive, day_offsets).
type rawHighlightCondition struct {
	Type       string                 `yaml:"type"`
	Enabled    bool                   `yaml:"enabled"`
	Priority   int                    `yaml:"priority"`
	Parameters map[string]interface{} `yaml:"parameters"`
}

// DocumentNode is one entry in the `nodes` map — a block definition. The
// map key (enforced in Load) must equal BlockID.
type DocumentNode struct {
	BlockID              string                 `yaml:"block_id"`
	BlockType            int                    `yaml:"block_type"`
	Name                 string                 `yaml:"name"`
	EntryConditions      []ConditionEntry       `yaml:"entry_conditions"`
	ExitConditions       []ConditionEntry       `yaml:"exit_conditions"`
	Parameters           map[string]interface{} `yaml:"parameters"`
	HighlightCondition   *rawHighlightCondition `yaml:"highlight_condition"`
	SpotEntryConditions  []ConditionEntry       `yaml:"spot_entry_conditions"`
	ForwardSpotCondition string                 `yaml:"forward_spot_condition"`
}

type DocumentEdge struct {
	From      string `yaml:"from_block"`
	To        string `yaml:"to_block"`
	EdgeType  string `yaml:"edge_type"`
	Condition string `yaml:"condition"`
	Priority  int    `yaml:"priority"`
}
