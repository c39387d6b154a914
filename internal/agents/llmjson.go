// Package agents implements the pipeline stages: query enrichment, web
// search, link classification, browser-driven scraping, registry search,
// contact enrichment and aggregation. Each agent reads its inputs from
// the task, does its work, and persists outputs through the field-level
// store operations.
package agents

import (
	"bufio"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// jsonObjectRe grabs the outermost brace-delimited span of a model reply,
// tolerating prose or markdown fences around it.
var jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)

// decodeObject extracts the first JSON object from an LLM reply and
// unmarshals it into out.
func decodeObject(reply string, out any) error {
	raw := jsonObjectRe.FindString(reply)
	if raw == "" {
		return eris.Errorf("agents: no JSON object in reply: %.120s", reply)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return eris.Wrap(err, "agents: decode JSON object")
	}
	return nil
}

// decodeLines parses a JSONL reply one line at a time, unmarshalling each
// non-empty line into a fresh T. Lines that fail to parse or fail the
// validation callback are skipped rather than failing the batch; malformed
// model output costs individual lines, not the whole filter pass.
func decodeLines[T any](reply string, valid func(T) bool) []T {
	var out []T
	sc := bufio.NewScanner(strings.NewReader(reply))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		line = strings.TrimPrefix(line, "```jsonl")
		line = strings.TrimPrefix(line, "```json")
		line = strings.TrimSuffix(line, "```")
		if line == "" || line == "```" {
			continue
		}
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			continue
		}
		if valid != nil && !valid(item) {
			continue
		}
		out = append(out, item)
	}
	return out
}
