package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/prospect-cli/internal/model"
)

func TestDecodeObject(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		var out map[string]string
		require.NoError(t, decodeObject(`{"a": "b"}`, &out))
		assert.Equal(t, "b", out["a"])
	})

	t.Run("object wrapped in prose and fences", func(t *testing.T) {
		reply := "Here is the result:\n```json\n{\"a\": \"b\"}\n```\nHope that helps."
		var out map[string]string
		require.NoError(t, decodeObject(reply, &out))
		assert.Equal(t, "b", out["a"])
	})

	t.Run("no object", func(t *testing.T) {
		var out map[string]string
		assert.Error(t, decodeObject("I could not find anything.", &out))
	})

	t.Run("malformed object", func(t *testing.T) {
		var out map[string]string
		assert.Error(t, decodeObject(`{"a": `+"\n"+`}`, &out))
	})
}

func TestDecodeLines(t *testing.T) {
	t.Run("skips bad lines and keeps valid ones", func(t *testing.T) {
		reply := "```jsonl\n" +
			`{"title": "ok", "link": "https://a.pl"}` + "\n" +
			"not json at all\n" +
			`{"title": "broken", "link":` + "\n" +
			`{"title": "also ok", "link": "https://b.pl"}` + "\n" +
			"```"
		out := decodeLines[model.SearchResult](reply, nil)
		require.Len(t, out, 2)
		assert.Equal(t, "https://a.pl", out[0].Link)
		assert.Equal(t, "https://b.pl", out[1].Link)
	})

	t.Run("validation drops lines", func(t *testing.T) {
		reply := `{"title": "ok", "link": "https://a.pl"}` + "\n" +
			`{"title": "no link"}`
		out := decodeLines(reply, func(r model.SearchResult) bool { return r.Link != "" })
		require.Len(t, out, 1)
		assert.Equal(t, "https://a.pl", out[0].Link)
	})

	t.Run("empty reply", func(t *testing.T) {
		assert.Empty(t, decodeLines[model.SearchResult]("", nil))
	})
}
