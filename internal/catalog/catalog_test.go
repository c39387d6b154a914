package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	return New([]Section{
		{
			Code: "F",
			Name: "Budownictwo",
			Subclasses: []Code{
				{Code: "43.99.Z", Name: "Pozostałe specjalistyczne roboty budowlane"},
				{Code: "42.11.Z", Name: "Roboty związane z budową dróg"},
			},
		},
		{
			Code: "G",
			Name: "Handel",
			Subclasses: []Code{
				{Code: "47.11.Z", Name: "Sprzedaż detaliczna"},
			},
		},
	})
}

func TestCatalogLoadEmbedded(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	require.NotEmpty(t, c.Sections())
	assert.NotEmpty(t, c.Candidates(""))
}

func TestCatalogCandidates(t *testing.T) {
	c := testCatalog()

	all := c.Candidates("")
	assert.Len(t, all, 3)

	construction := c.Candidates("F")
	assert.Len(t, construction, 2)

	lower := c.Candidates("f")
	assert.Equal(t, construction, lower)

	assert.Empty(t, c.Candidates("X"))
}

func TestCodeSetDotInsensitive(t *testing.T) {
	set := NewCodeSet([]string{"43.99.Z", "4211z"})

	assert.True(t, set.Has("4399Z"))
	assert.True(t, set.Has("43.99.Z"))
	assert.True(t, set.Has("42.11.Z"))
	assert.False(t, set.Has("47.11.Z"))

	assert.True(t, set.HasAny([]string{"47.11.Z", "4399Z"}))
	assert.False(t, set.HasAny([]string{"47.11.Z"}))
	assert.False(t, set.HasAny(nil))

	assert.False(t, set.Empty())
	assert.True(t, NewCodeSet(nil).Empty())
}

func TestDotless(t *testing.T) {
	assert.Equal(t, []string{"4399Z", "4211Z"}, Dotless([]string{"43.99.Z", " 42.11.z "}))
	assert.Empty(t, Dotless([]string{""}))
}
