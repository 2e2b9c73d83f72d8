package ocr

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// extractionSchemaJSON only checks shape. Presence of the required fields is
// checked afterwards so the error can name them.
const extractionSchemaJSON = `{
	"type": "object",
	"properties": {
		"invoice_number":     {"type": ["string", "number", "null"]},
		"client":             {"type": ["string", "null"]},
		"amount":             {"type": ["number", "string", "null"]},
		"due_date":           {"type": ["string", "null"]},
		"description":        {"type": ["string", "null"]},
		"client_email":       {"type": ["string", "null"]},
		"client_phone":       {"type": ["string", "null"]},
		"client_address":     {"type": ["string", "null"]},
		"client_postal_code": {"type": ["string", "null"]},
		"client_city":        {"type": ["string", "null"]},
		"client_country":     {"type": ["string", "null"]},
		"client_vat_number":  {"type": ["string", "null"]},
		"client_siren":       {"type": ["string", "null"]}
	}
}`

var extractionSchema = mustCompileSchema(extractionSchemaJSON)

func mustCompileSchema(schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader([]byte(schema))); err != nil {
		panic(fmt.Sprintf("add schema: %v", err))
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return compiled
}
