package agent

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Tool is a capability the model can invoke by name.
//
// Execute returns a failed ToolResult or a Go error for failures; the
// registry turns both into a ToolResult with Error set, so neither escapes
// to the controller.
type Tool interface {
	// Name is the function name the model calls.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Schema is the JSON Schema of the input object.
	Schema() json.RawMessage

	// Execute runs the tool with raw JSON input.
	Execute(ctx context.Context, input json.RawMessage) (ToolResult, error)
}

// ToolDescriptor is what providers send to the model for one tool.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"parameters"`
}

// ReflectSchema builds an inline object schema from a request struct, using
// json tags for field names and jsonschema tags for constraints.
func ReflectSchema(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
		Anonymous:      true,
	}
	schema := r.Reflect(v)
	schema.Version = ""
	data, err := json.Marshal(schema)
	if err != nil {
		// Reflection output is plain data; a marshal failure is a programming error.
		panic("reflect tool schema: " + err.Error())
	}
	return data
}

// DecodeInput decodes raw tool input into a request struct. Malformed JSON is
// reported as a ValidationError.
func DecodeInput(input json.RawMessage, dst any) error {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := json.Unmarshal(input, dst); err != nil {
		return Validationf("invalid input: %v", err)
	}
	return nil
}
