package mapping

// Analyzer is a custom analyzer definition.
type Analyzer struct {
	Tokenizer string   `json:"tokenizer"`
	Filter    []string `json:"filter"`
}

// Analysis holds the custom analyzers of an index.
type Analysis struct {
	Analyzer map[string]Analyzer `json:"analyzer"`
}

// Settings is the settings block of a create-index call.
type Settings struct {
	NumberOfShards   int      `json:"number_of_shards"`
	NumberOfReplicas int      `json:"number_of_replicas"`
	Analysis         Analysis `json:"analysis"`
}

// CreateIndexBody is the full create-index request body.
type CreateIndexBody struct {
	Settings Settings `json:"settings"`
}

// NewCreateIndexBody returns index settings with the folding analyzer every
// generated text field references.
func NewCreateIndexBody(shards, replicas int) CreateIndexBody {
	return CreateIndexBody{Settings: Settings{
		NumberOfShards:   shards,
		NumberOfReplicas: replicas,
		Analysis: Analysis{Analyzer: map[string]Analyzer{
			FoldingAnalyzer: {
				Tokenizer: "standard",
				Filter:    []string{"lowercase", "asciifolding"},
			},
		}},
	}}
}
