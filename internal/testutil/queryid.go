package testutil

// FixedQueryIDGenerator returns the same query ID every time.
//
// Query IDs end up in logs and scenario traces; a fixed ID keeps those
// byte-identical across runs.
//
// Thread-safety: FixedQueryIDGenerator is stateless and safe for concurrent use.
type FixedQueryIDGenerator struct {
	id string
}

// NewFixedQueryIDGenerator creates a fixed query ID generator.
//
// If id is empty, Generate() returns "test-query-default".
func NewFixedQueryIDGenerator(id string) *FixedQueryIDGenerator {
	if id == "" {
		id = "test-query-default"
	}
	return &FixedQueryIDGenerator{id: id}
}

// Generate returns the fixed query ID.
//
// Implements sqlext.QueryIDGenerator.
func (g *FixedQueryIDGenerator) Generate() string {
	return g.id
}
