package http

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/garyjia/invoice-vision/internal/domain/entity"
)

var (
	textField   = map[string]any{"type": []string{"string", "null"}, "maxLength": 200}
	amountField = map[string]any{"type": []string{"number", "string", "null"}}
)

// updateSchema accepts the editable invoice fields only. Amounts may arrive
// as numbers or as printed strings such as "NT$1,050".
var updateSchema = map[string]any{
	"type":                 "object",
	"minProperties":        1,
	"additionalProperties": false,
	"properties": map[string]any{
		entity.FieldSourceFileName: textField,
		entity.FieldDate:           textField,
		entity.FieldInvoiceNumber:  textField,
		entity.FieldSellerName:     textField,
		entity.FieldSellerTaxID:    textField,
		entity.FieldSubtotal:       amountField,
		entity.FieldTax:            amountField,
		entity.FieldTotal:          amountField,
		entity.FieldInvoiceType:    textField,
		entity.FieldCategory:       textField,
	},
}

var deleteSchema = map[string]any{
	"type":                 "object",
	"required":             []string{"ids"},
	"additionalProperties": false,
	"properties": map[string]any{
		"ids": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]any{"type": "integer"},
		},
	},
}

func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func mustCompile(name string, schemaMap map[string]any) *jsonschema.Schema {
	schema, err := compileSchema(name, schemaMap)
	if err != nil {
		panic(err)
	}
	return schema
}

var (
	compiledUpdateSchema = mustCompile("invoice_update.json", updateSchema)
	compiledDeleteSchema = mustCompile("invoice_delete.json", deleteSchema)
)

// decodeValidated checks body against schema and decodes it into out
func decodeValidated(schema *jsonschema.Schema, body []byte, out any) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("request does not match schema: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	return nil
}
