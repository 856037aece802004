package agentcore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateToolArgs is the Tool Validator (component E): it checks a tool
// call's arguments against the tool's declared JSON Schema before
// execution. Validation degrades open: a schema that fails to compile (or a
// tool with no schema at all) is treated as passing, since a broken schema
// must never block an otherwise-runnable tool call.
//
// On failure it returns a *ValidationError with a path-qualified message
// taken from the first reported schema violation.
func ValidateToolArgs(tool Tool, args json.RawMessage) error {
	schema := tool.Schema()
	if len(schema) == 0 {
		return nil
	}

	compiled, err := compileSchema(tool.Name(), schema)
	if err != nil || compiled == nil {
		return nil
	}

	var instance any
	if len(bytes.TrimSpace(args)) == 0 {
		instance = map[string]any{}
	} else if err := json.Unmarshal(args, &instance); err != nil {
		return NewValidationError("", fmt.Sprintf("arguments are not valid JSON: %v", err), args)
	}

	if err := compiled.Validate(instance); err != nil {
		path, msg := firstViolation(err)
		return NewValidationError(path, msg, args)
	}
	return nil
}

// schemaCache avoids recompiling a tool's schema on every call; tool
// schemas are static for the lifetime of a Tool value.
var (
	schemaCacheMu sync.Mutex
	schemaCache   = map[string]*jsonschema.Schema{}
)

func compileSchema(toolName string, schema map[string]any) (result *jsonschema.Schema, err error) {
	schemaCacheMu.Lock()
	if cached, ok := schemaCache[toolName]; ok {
		schemaCacheMu.Unlock()
		return cached, nil
	}
	schemaCacheMu.Unlock()

	// jsonschema/v6 compiles from a resource added to a Compiler, not
	// directly from a map, so round-trip through its loader.
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	// Degrade open on panics from malformed schemas (the library panics on
	// some structurally invalid documents rather than returning an error).
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("schema panic: %v", r)
		}
	}()

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	resourceURL := "mem://tools/" + toolName + ".json"
	if err := c.AddResource(resourceURL, doc); err != nil {
		return nil, err
	}
	compiled, err := c.Compile(resourceURL)
	if err != nil {
		return nil, err
	}

	schemaCacheMu.Lock()
	schemaCache[toolName] = compiled
	schemaCacheMu.Unlock()

	return compiled, nil
}

// firstViolation extracts a dot-joined property path and message from the deepest
// leaf of a jsonschema validation error tree, which is usually the most
// specific complaint (e.g. "age: expected integer, but got string" rather
// than the root "doesn't validate with ...").
func firstViolation(err error) (path, message string) {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return "", err.Error()
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	p := ""
	for _, tok := range leaf.InstanceLocation {
		if p != "" {
			p += "."
		}
		p += tok
	}
	return p, leaf.Error()
}
