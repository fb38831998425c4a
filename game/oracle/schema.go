package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Reply schemas, one per structured operation.
const (
	memorySchemaText = `{
  "type": "object",
  "required": ["summary", "importance", "tags"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "importance": {"type": "number"},
    "tags": {"type": "array", "items": {"type": "string"}}
  }
}`

	taskSchemaText = `{
  "type": "object",
  "required": ["task", "durationMinutes"],
  "properties": {
    "task": {"type": "string", "minLength": 1},
    "durationMinutes": {"type": "integer", "minimum": 1, "maximum": 480},
    "reason": {"type": "string"}
  }
}`

	economySchemaText = `{
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": {"enum": ["BUY", "HOLD"]},
    "choice": {"type": ["string", "null"]},
    "reason": {"type": "string"}
  }
}`

	factionSchemaText = `{
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": {"enum": ["EXPAND", "FORTIFY", "SCAVENGE", "RECRUIT", "MAINTAIN"]},
    "reasoning": {"type": "string"},
    "newGoal": {"type": ["string", "null"]}
  }
}`

	worldEventSchemaText = `{
  "type": "object",
  "required": ["title", "description", "type"],
  "properties": {
    "title": {"type": "string", "minLength": 1, "maxLength": 128},
    "description": {"type": "string", "minLength": 1},
    "type": {"enum": ["WEATHER", "POLITICAL", "INVASION", "RESOURCE", "ANOMALY"]}
  }
}`
)

var (
	memorySchema     = jsonschema.MustCompileString("memory.schema.json", memorySchemaText)
	taskSchema       = jsonschema.MustCompileString("task.schema.json", taskSchemaText)
	economySchema    = jsonschema.MustCompileString("economy.schema.json", economySchemaText)
	factionSchema    = jsonschema.MustCompileString("faction.schema.json", factionSchemaText)
	worldEventSchema = jsonschema.MustCompileString("world_event.schema.json", worldEventSchemaText)
)

// extractObject returns the outermost {...} in raw, tolerating code fences
// and prose around it.
func extractObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in reply")
	}
	return raw[start : end+1], nil
}

// decode validates raw against schema and unmarshals it into T.
func decode[T any](raw string, schema *jsonschema.Schema) (T, error) {
	var out T
	obj, err := extractObject(raw)
	if err != nil {
		return out, err
	}
	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return out, fmt.Errorf("parse reply: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return out, fmt.Errorf("reply does not match schema: %w", err)
	}
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return out, fmt.Errorf("decode reply: %w", err)
	}
	return out, nil
}
