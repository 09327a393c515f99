package query

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// QueryCondition is a query as sent by API clients.
//
//	{"select": ["id"], "where": {"age": {"_gt": 18}},
//	 "orderBy": [{"field": "id", "direction": "desc"}], "size": 20, "current": 2}
type QueryCondition struct {
	Select  []string       `json:"select,omitempty"`
	Where   map[string]any `json:"where,omitempty"`
	OrderBy []OrderBy      `json:"orderBy,omitempty"`
	Size    *int           `json:"size,omitempty"`
	Current *int           `json:"current,omitempty"`
}

// OrderBy is one ordering term; Direction is "asc" or "desc".
type OrderBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction,omitempty"`
}

// ParseCondition decodes a condition keeping numbers exact.
func ParseCondition(data []byte) (*QueryCondition, error) {
	cond := &QueryCondition{}
	if len(bytes.TrimSpace(data)) == 0 {
		return cond, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(cond); err != nil {
		return nil, fmt.Errorf("decode query condition: %w", err)
	}
	return cond, nil
}

// WithPage sets size and current.
func (c *QueryCondition) WithPage(size, current int) *QueryCondition {
	c.Size = &size
	c.Current = &current
	return c
}
