// Package openapi loads the backend's OpenAPI document and resolves
// operations by operationId, so resource routes can follow the published
// contract instead of hard-coded paths.
package openapi

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Operation is a resolved OpenAPI operation.
type Operation struct {
	OperationID  string
	Method       string
	PathTemplate string
	Parameters   []*openapi3.Parameter
	HasBody      bool
}

// Index is an in-memory index of operations keyed by operationId.
type Index struct {
	serverURL  string
	operations map[string]Operation
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{operations: make(map[string]Operation)}
}

// LoadFile parses and validates the OpenAPI document at path and indexes
// every operation that has an operationId.
func (idx *Index) LoadFile(path string) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("openapi: loading %s: %w", path, err)
	}
	return idx.add(doc)
}

// LoadData is LoadFile for an in-memory document.
func (idx *Index) LoadData(data []byte) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return fmt.Errorf("openapi: parsing document: %w", err)
	}
	return idx.add(doc)
}

func (idx *Index) add(doc *openapi3.T) error {
	if err := doc.Validate(context.Background()); err != nil {
		return fmt.Errorf("openapi: validating document: %w", err)
	}
	if idx.serverURL == "" && len(doc.Servers) > 0 {
		idx.serverURL = doc.Servers[0].URL
	}

	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			if op.OperationID == "" {
				continue
			}
			params := make([]*openapi3.Parameter, 0, len(item.Parameters)+len(op.Parameters))
			for _, ref := range item.Parameters {
				if ref.Value != nil {
					params = append(params, ref.Value)
				}
			}
			for _, ref := range op.Parameters {
				if ref.Value != nil {
					params = append(params, ref.Value)
				}
			}
			idx.operations[op.OperationID] = Operation{
				OperationID:  op.OperationID,
				Method:       strings.ToUpper(method),
				PathTemplate: path,
				Parameters:   params,
				HasBody:      op.RequestBody != nil && op.RequestBody.Value != nil,
			}
		}
	}
	return nil
}

// ServerURL returns the first server URL declared by the loaded documents.
func (idx *Index) ServerURL() string { return idx.serverURL }

// Operation returns the indexed operation.
func (idx *Index) Operation(operationID string) (Operation, bool) {
	op, ok := idx.operations[operationID]
	return op, ok
}

// Route returns the method and path template of an operation.
func (idx *Index) Route(operationID string) (method, pathTemplate string, ok bool) {
	op, ok := idx.operations[operationID]
	if !ok {
		return "", "", false
	}
	return op.Method, op.PathTemplate, true
}

// OperationIDs returns all indexed operation ids, sorted.
func (idx *Index) OperationIDs() []string {
	ids := make([]string, 0, len(idx.operations))
	for id := range idx.operations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// QueryParameters returns the names of the query parameters an operation
// declares, in declaration order.
func (op Operation) QueryParameters() []string {
	var names []string
	for _, p := range op.Parameters {
		if p.In == openapi3.ParameterInQuery {
			names = append(names, p.Name)
		}
	}
	return names
}
