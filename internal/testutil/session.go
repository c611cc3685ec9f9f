package testutil

// FixedSessionGenerator returns the same session token every time.
//
// Unlike journal.FixedGenerator which hands out tokens in sequence, this
// generator never runs out, so a scenario run any number of times journals
// under one token and snapshots stay byte-identical.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	token string
}

// NewFixedSessionGenerator creates a fixed session generator.
// If token is empty, Generate returns "test-session-default".
func NewFixedSessionGenerator(token string) *FixedSessionGenerator {
	if token == "" {
		token = "test-session-default"
	}
	return &FixedSessionGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedSessionGenerator) Generate() string {
	return g.token
}
