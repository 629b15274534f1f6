package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrEmptyImport is returned when the import payload is blank.
var ErrEmptyImport = errors.New("paste a valid JSON document to import")

// ImportError describes why an import payload was rejected. Message is meant
// to be shown to the user as is.
type ImportError struct {
	Message string
	Err     error
}

func (e *ImportError) Error() string { return e.Message }
func (e *ImportError) Unwrap() error { return e.Err }

func importErrorf(format string, args ...any) *ImportError {
	return &ImportError{Message: fmt.Sprintf(format, args...)}
}

const messageSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["from", "text"],
  "properties": {
    "from": {"enum": ["user", "agent"]},
    "text": {"type": "string"}
  }
}`

var messageSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("message.schema.json", strings.NewReader(messageSchemaJSON)); err != nil {
		panic(err)
	}
	return c.MustCompile("message.schema.json")
}()

// ParseImport decodes and validates an import payload. The format is chosen
// from the file name extension (".yaml" and ".yml" are YAML, ".toml" is TOML,
// anything else is JSON); name may be empty.
func ParseImport(name string, data []byte) (Script, error) {
	if strings.TrimSpace(string(data)) == "" {
		return Script{}, &ImportError{Message: ErrEmptyImport.Error(), Err: ErrEmptyImport}
	}

	var doc any
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Script{}, &ImportError{Message: "the YAML is not well formed", Err: err}
		}
		var err error
		if doc, err = normalize(doc); err != nil {
			return Script{}, &ImportError{Message: "the YAML cannot be represented as JSON", Err: err}
		}
	case ".toml":
		var m map[string]any
		if _, err := toml.Decode(string(data), &m); err != nil {
			return Script{}, &ImportError{Message: "the TOML is not well formed", Err: err}
		}
		var err error
		if doc, err = normalize(m); err != nil {
			return Script{}, &ImportError{Message: "the TOML cannot be represented as JSON", Err: err}
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return Script{}, &ImportError{Message: "the JSON is not well formed", Err: err}
		}
	}

	return ValidateImport(doc)
}

// normalize round-trips v through encoding/json so every input format is
// validated against the same data model.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateImport checks a decoded JSON document and converts it into a
// Script. Names and texts are trimmed. The first problem found is reported.
func ValidateImport(doc any) (Script, error) {
	root, ok := doc.(map[string]any)
	if !ok {
		return Script{}, importErrorf("the JSON root must be an object")
	}

	rawProfile, ok := root["profile"].(map[string]any)
	if !ok {
		return Script{}, importErrorf("the profile object is missing")
	}
	name, ok := rawProfile["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return Script{}, importErrorf("profile.name must be a non-empty string")
	}
	avatar, ok := rawProfile["avatarUrl"].(string)
	if !ok {
		return Script{}, importErrorf("profile.avatarUrl must be a string (it may be empty)")
	}

	rawMessages, ok := root["messages"].([]any)
	if !ok {
		return Script{}, importErrorf("messages must be an array")
	}

	script := Script{
		Profile: Profile{
			Name:      strings.TrimSpace(name),
			AvatarURL: strings.TrimSpace(avatar),
		},
		Messages: make([]Message, 0, len(rawMessages)),
	}
	for i, item := range rawMessages {
		if err := messageSchema.Validate(item); err != nil {
			return Script{}, &ImportError{
				Message: fmt.Sprintf("invalid message at position %d", i+1),
				Err:     err,
			}
		}
		m := item.(map[string]any)
		script.Messages = append(script.Messages, Message{
			From: Role(m["from"].(string)),
			Text: strings.TrimSpace(m["text"].(string)),
		})
	}

	return script, nil
}
