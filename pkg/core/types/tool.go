package types

// FunctionDecl declares a callable tool the model may request.
type FunctionDecl struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Schema is the JSON-schema subset used by tool parameters.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// Schema types
const (
	SchemaObject  = "object"
	SchemaString  = "string"
	SchemaBoolean = "boolean"
	SchemaNumber  = "number"
	SchemaInteger = "integer"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// StringArg returns args[key] when it is a string.
func (c ToolCall) StringArg(key string) (string, bool) {
	if c.Args == nil {
		return "", false
	}
	s, ok := c.Args[key].(string)
	return s, ok
}
