package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCore(t *testing.T) {
	tests := map[string]string{
		"Acme Widgets Ltd":          "ACME WIDGETS",
		"The Acme Company Limited.": "ACME COMPANY",
		"THE LTD":                   "THE",
		"Infosys BPM (UK) PLC":      "INFOSYS BPM UK",
	}
	for in, want := range tests {
		assert.Equal(t, want, Core(in), in)
	}
}

func TestCleanDisplay(t *testing.T) {
	assert.Equal(t, "Acme Ltd", CleanDisplay(`  "*Acme   Ltd`))
}

func TestVariants(t *testing.T) {
	v := Variants("Smith & Jones Ltd")
	assert.Equal(t, []string{"Smith & Jones Ltd", "SMITH JONES", "Smith and Jones Ltd"}, v)
	assert.LessOrEqual(t, len(Variants("A and B Holdings Limited")), 4)
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"ACME", "LTD", "WIDGETS"}, Tokens("widgets, acme ltd. ACME"))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 100, Ratio("ACME", "ACME"))
	assert.Equal(t, 75, Ratio("ACME", "ACMA"))
	assert.Equal(t, 100, Ratio("", ""))
	assert.Equal(t, 0, Ratio("ABC", ""))
}

func TestTokenSetRatio(t *testing.T) {
	assert.Equal(t, 100, TokenSetRatio("Acme Widgets", "Welcome to ACME WIDGETS, makers of things"))
	assert.Equal(t, 100, TokenSetRatio("Widgets Acme", "acme widgets"))
	assert.Equal(t, 0, TokenSetRatio("", "acme"))

	partial := TokenSetRatio("Acme Widgets Ltd", "acme widgets plc")
	assert.Greater(t, partial, 60)
	assert.Less(t, partial, 100)

	assert.Less(t, TokenSetRatio("Northern Bakery", "Quantum Software Consulting"), 50)
}
