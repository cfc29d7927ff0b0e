package flowclient

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mavleo96/notary-doublespend/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrMalformedResponse marks a response that does not match the flowstarter contract
var ErrMalformedResponse = errors.New("malformed flow service response")

const (
	schemaStartFlow   = "start_flow.json"
	schemaFlowOutcome = "flow_outcome.json"
	schemaSpendResult = "spend_result.json"
	schemaIssueResult = "issue_result.json"
)

// validator checks raw payloads against the embedded JSON schemas
type validator struct {
	schemas map[string]*jsonschema.Schema
}

func newValidator() (*validator, error) {
	compiler := jsonschema.NewCompiler()
	names := []string{schemaStartFlow, schemaFlowOutcome, schemaSpendResult, schemaIssueResult}
	for _, name := range names {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}
	}

	v := &validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// validate checks raw against the named schema
func (v *validator) validate(name string, raw []byte) error {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := v.schemas[name].Validate(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// decode validates raw against the named schema and unmarshals it into target
func (v *validator) decode(name string, raw []byte, target any) error {
	if err := v.validate(name, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

var defaultValidator = func() *validator {
	v, err := newValidator()
	if err != nil {
		panic(err)
	}
	return v
}()

// DecodeSpendResult validates and decodes the payload of a completed spend flow
func DecodeSpendResult(o models.Outcome) (models.SpendResult, error) {
	var res models.SpendResult
	if o.Status != models.StatusCompleted {
		return res, fmt.Errorf("spend flow has status %s, expected %s", o.Status, models.StatusCompleted)
	}
	if err := defaultValidator.validate(schemaSpendResult, o.ResultPayload); err != nil {
		return res, err
	}
	if err := o.Decode(&res); err != nil {
		return res, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return res, nil
}

// DecodeIssuedTransactions validates and decodes the payload of a completed issuance flow
func DecodeIssuedTransactions(o models.Outcome) ([]models.TransactionDigest, error) {
	var txns []models.TransactionDigest
	if o.Status != models.StatusCompleted {
		return nil, fmt.Errorf("issuance flow has status %s, expected %s", o.Status, models.StatusCompleted)
	}
	err := defaultValidator.decode(schemaIssueResult, o.ResultPayload, &txns)
	return txns, err
}
