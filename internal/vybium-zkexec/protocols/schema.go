package protocols

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const receiptSchemaURL = "https://vybium.schemas.local/zkexec/receipt.schema.json"

// receiptSchema describes the JSON form of a Receipt. Field contents are
// checked by the verifier; the schema only pins the shape.
const receiptSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "claim", "journal", "seal"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "claim": {
      "type": "object",
      "required": ["image_id", "exit_code", "journal_digest", "trace_root"],
      "additionalProperties": false,
      "properties": {
        "image_id": {"type": "string", "pattern": "^[0-9a-f]{80}$"},
        "exit_code": {"type": "integer", "minimum": 0},
        "journal_digest": {"$ref": "#/$defs/hash32"},
        "trace_root": {"$ref": "#/$defs/hash32"}
      }
    },
    "journal": {"type": ["string", "null"]},
    "seal": {
      "type": "object",
      "required": ["prover_key_id", "transcript", "nonce", "signature", "halt"],
      "additionalProperties": false,
      "properties": {
        "prover_key_id": {"type": "string", "pattern": "^[0-9a-f]{16}$"},
        "transcript": {"type": "string"},
        "nonce": {"type": ["string", "null"]},
        "signature": {"type": ["string", "null"]},
        "halt": {
          "oneOf": [
            {"type": "null"},
            {
              "type": "object",
              "required": ["row", "path"],
              "additionalProperties": false,
              "properties": {
                "row": {
                  "type": "object",
                  "required": ["step", "op", "size", "digest"],
                  "additionalProperties": false,
                  "properties": {
                    "step": {"type": "integer", "minimum": 0},
                    "op": {"type": "integer", "minimum": 0, "maximum": 255},
                    "size": {"type": "integer", "minimum": 0},
                    "digest": {
                      "type": "array",
                      "minItems": 32,
                      "maxItems": 32,
                      "items": {"type": "integer", "minimum": 0, "maximum": 255}
                    }
                  }
                },
                "path": {
                  "type": ["array", "null"],
                  "items": {
                    "type": "object",
                    "required": ["hash", "is_right"],
                    "additionalProperties": false,
                    "properties": {
                      "hash": {"type": "string"},
                      "is_right": {"type": "boolean"}
                    }
                  }
                }
              }
            }
          ]
        }
      }
    }
  },
  "$defs": {
    "hash32": {"type": "string", "pattern": "^[0-9a-f]{64}$"}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadReceiptSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(receiptSchemaURL, strings.NewReader(receiptSchema)); err != nil {
			schemaErr = fmt.Errorf("receipt schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(receiptSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("receipt schema compile failed: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// validateReceiptJSON checks data against the receipt schema.
func validateReceiptJSON(data []byte) error {
	schema, err := loadReceiptSchema()
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReceipt, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after receipt", ErrMalformedReceipt)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: schema validation failed: %v", ErrMalformedReceipt, err)
	}
	return nil
}
