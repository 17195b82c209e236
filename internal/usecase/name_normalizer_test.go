package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tirewatch/backend/internal/domain"
)

func TestNormalizeName(t *testing.T) {
	refs := domain.NewNameSet("GEOLANDAR", "GEOLANDAR A/T G015", "OPEN COUNTRY AT", "PROXES CF2")

	testCases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "abbreviation rule", raw: "OPAT", want: "OPEN COUNTRY AT"},
		{name: "abbreviation inside longer text", raw: "toyo opat 112S", want: "OPEN COUNTRY AT"},
		{name: "more specific rule listed first", raw: "OPAT PLUS", want: "OPEN COUNTRY AT PLUS"},
		{name: "slash spelling", raw: "Open Country M/T", want: "OPEN COUNTRY MT"},
		{name: "wildcard rule", raw: "TRANSIT ARZ 6-X", want: "TRANSITO ARZ6-X"},
		{name: "wildcard rule without optional character", raw: "TRANSITO ARZ6-X", want: "TRANSITO ARZ6-X"},
		{name: "roman numeral wildcard", raw: "DUELER H/T 684 II", want: "DUELER HT 684 II"},
		{name: "longest reference name wins", raw: "YOKOHAMA GEOLANDAR A/T G015 XL", want: "GEOLANDAR A/T G015"},
		{name: "shorter reference name", raw: "GEOLANDAR X-CV", want: "GEOLANDAR"},
		{name: "unresolved passes through cleaned", raw: "  some   new   model ", want: "SOME NEW MODEL"},
		{name: "empty", raw: "   ", want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeName(tc.raw, refs))
		})
	}
}

func TestResolve(t *testing.T) {
	n := NewNameNormalizer(DefaultRuleTables().NameRules, false)
	refs := domain.NewNameSet("PROXES CF2")

	t.Run("rule hit", func(t *testing.T) {
		name, how := n.Resolve("OPMT", refs)
		assert.Equal(t, "OPEN COUNTRY MT", name)
		assert.Equal(t, ResolvedByRule, how)
	})

	t.Run("reference hit", func(t *testing.T) {
		name, how := n.Resolve("TOYO PROXES CF2 SUV", refs)
		assert.Equal(t, "PROXES CF2", name)
		assert.Equal(t, ResolvedByReference, how)
	})

	t.Run("unresolved", func(t *testing.T) {
		name, how := n.Resolve("Ecopia EP150", refs)
		assert.Equal(t, "ECOPIA EP150", name)
		assert.Equal(t, Unresolved, how)
		assert.Equal(t, "unresolved", how.String())
	})

	t.Run("rules run before reference names", func(t *testing.T) {
		name, how := n.Resolve("OPAT", domain.NewNameSet("OPAT"))
		assert.Equal(t, "OPEN COUNTRY AT", name)
		assert.Equal(t, ResolvedByRule, how)
	})
}

func TestLongestContainedName_TieBreak(t *testing.T) {
	refs := domain.NewNameSet("ABC", "ABD")
	for i := 0; i < 20; i++ {
		assert.Equal(t, "ABC", longestContainedName("ABC ABD", refs))
	}
}

func TestNewNameNormalizer_WildcardLiterals(t *testing.T) {
	n := NewNameNormalizer([]domain.NameRule{
		{Pattern: "A(B*C", Replacement: "X", Wildcard: true},
		{Pattern: "OPAT", Replacement: "OPEN COUNTRY AT"},
	}, false)

	assert.Len(t, n.rules, 2)
	assert.Equal(t, "X", n.Normalize("a(b 123 c", nil))
	assert.Equal(t, "ABC", n.Normalize("abc", nil))
	assert.Equal(t, "OPEN COUNTRY AT", n.Normalize("opat", nil))
}
