// ABOUTME: JSON Schemas for each command's arguments, compiled once per Wallet
// ABOUTME: Violations surface as ValidationError from the prepare phase

package wallet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// segment matches a storage key segment: no separators, wildcards or spaces.
const segment = `{"type": "string", "pattern": "^[^:*\\s]+$"}`

const txSchema = `{
	"type": "object",
	"required": ["calls"],
	"properties": {
		"from": {"type": "string"},
		"calls": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["to", "function"],
				"properties": {
					"to": ` + segment + `,
					"function": ` + segment + `,
					"args": {"type": "array"}
				}
			}
		},
		"fee": {}
	}
}`

var argumentSchemas = map[Command]string{
	CommandGetAccounts:    `{"type": "object"}`,
	CommandGetAddressBook: `{"type": "object"}`,
	CommandRegisterContract: `{
		"type": "object",
		"required": ["address"],
		"properties": {
			"address": ` + segment + `,
			"classId": {"type": "string"},
			"artifact": {"type": "object"}
		}
	}`,
	CommandRegisterSender: `{
		"type": "object",
		"required": ["address"],
		"properties": {
			"address": ` + segment + `,
			"alias": {"type": "string"}
		}
	}`,
	CommandSimulateTx: txSchema,
	CommandSimulateUtility: `{
		"type": "object",
		"required": ["contract", "function"],
		"properties": {
			"contract": ` + segment + `,
			"function": ` + segment + `,
			"args": {"type": "array"}
		}
	}`,
	CommandSendTx: txSchema,
	CommandCreateAuthWit: `{
		"type": "object",
		"required": ["from", "intent"],
		"properties": {
			"from": {"type": "string", "minLength": 1},
			"intent": {"type": "object"}
		}
	}`,
	CommandGetPrivateEvents: `{
		"type": "object",
		"required": ["contract", "event"],
		"properties": {
			"contract": ` + segment + `,
			"event": {"type": "string", "minLength": 1},
			"fromBlock": {"type": "integer", "minimum": 0},
			"toBlock": {"type": "integer", "minimum": 0},
			"recipients": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	CommandGetContractMetadata: `{
		"type": "object",
		"required": ["address"],
		"properties": {"address": ` + segment + `}
	}`,
	CommandGetContractClassMetadata: `{
		"type": "object",
		"required": ["classId"],
		"properties": {"classId": ` + segment + `}
	}`,
	CommandRequestCapabilities: `{
		"type": "object",
		"required": ["capabilities"],
		"properties": {
			"capabilities": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["type"],
					"properties": {
						"type": {"enum": ["accounts", "contracts", "contractClasses", "simulation", "transaction", "data"]}
					}
				}
			},
			"mode": {"enum": ["permissive", "strict"]},
			"expiresAt": {"type": "string", "format": "date-time"}
		}
	}`,
}

// schemas holds the compiled argument schema of every command.
type schemas map[Command]*jsonschema.Schema

func compileSchemas() (schemas, error) {
	out := make(schemas, len(argumentSchemas))
	for cmd, src := range argumentSchemas {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		c.AssertFormat = true
		url := fmt.Sprintf("https://wallet-gateway.local/schemas/%s.schema.json", cmd)
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("loading %s schema: %w", cmd, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compiling %s schema: %w", cmd, err)
		}
		out[cmd] = compiled
	}
	return out, nil
}

// validate checks raw against cmd's schema.
func (s schemas) validate(cmd Command, raw json.RawMessage) error {
	schema, ok := s[cmd]
	if !ok {
		return nil
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return &ValidationError{Method: cmd.String(), Reason: err.Error()}
	}
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			leaf := deepestCause(verr)
			return &ValidationError{Method: cmd.String(), Field: leaf.InstanceLocation, Reason: leaf.Message}
		}
		return &ValidationError{Method: cmd.String(), Reason: err.Error()}
	}
	return nil
}

func deepestCause(e *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(e.Causes) > 0 {
		e = e.Causes[0]
	}
	return e
}

func decodeDocument(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
