package types

// ModelDescriptor identifies a selectable language model. Descriptors are
// immutable once the catalog is built; Name is the unique key clients use.
type ModelDescriptor struct {
	// Human-readable display name, e.g. "Bloom-560M".
	Name string `json:"name" yaml:"name" toml:"name"`
	// Identifier understood by the serving backend, e.g. "bigscience/bloom-560m".
	BackingID string `json:"backing_id" yaml:"backing_id" toml:"backing_id"`
	// Parameter count label for display, e.g. "560M".
	Parameters string `json:"parameters" yaml:"parameters" toml:"parameters"`
}

// ModelInfo is the observability view of one catalog entry.
type ModelInfo struct {
	Name       string `json:"name"`
	BackingID  string `json:"backing_id"`
	Parameters string `json:"parameters"`
	Loaded     bool   `json:"loaded"`
}

// Interaction is one logged (prompt, response, model, timestamp) tuple.
// Records are append-only; they are never updated or deleted individually.
type Interaction struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"` // RFC 3339
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Failed    bool   `json:"failed,omitempty"`
}
