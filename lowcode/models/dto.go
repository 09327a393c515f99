package models

import (
	"encoding/json"
	"time"
)

// CreateSchemaRequest is the body of POST /lowcode/schemas.
type CreateSchemaRequest struct {
	SchemaName  string            `json:"schemaName"`
	TableName   string            `json:"tableName"`
	Description string            `json:"description"`
	Fields      []FieldDefinition `json:"fields"`
	Indexes     []IndexDefinition `json:"indexes"`
}

// UpdateDraftRequest replaces the working field list.
type UpdateDraftRequest struct {
	Description *string           `json:"description,omitempty"`
	Fields      []FieldDefinition `json:"fields"`
	Indexes     []IndexDefinition `json:"indexes"`
}

type SchemaResponse struct {
	ObjectId         string            `json:"objectId"`
	SchemaName       string            `json:"schemaName"`
	TableName        string            `json:"tableName"`
	Description      string            `json:"description"`
	Status           string            `json:"status"`
	Version          int               `json:"version"`
	PublishedVersion int               `json:"publishedVersion"`
	Fields           []FieldDefinition `json:"fields"`
	Indexes          []IndexDefinition `json:"indexes"`
	CreatedDate      int64             `json:"createdDate"`
	LastUpdated      int64             `json:"lastUpdated"`
}

type CreatePageRequest struct {
	PageName   string          `json:"pageName"`
	SchemaName string          `json:"schemaName"`
	Title      string          `json:"title"`
	Layout     json.RawMessage `json:"layout"`
}

type PageResponse struct {
	ObjectId    string          `json:"objectId"`
	PageName    string          `json:"pageName"`
	SchemaName  string          `json:"schemaName"`
	Title       string          `json:"title"`
	Layout      json.RawMessage `json:"layout"`
	CreatedDate int64           `json:"createdDate"`
	LastUpdated int64           `json:"lastUpdated"`
}

// SequenceResponse is returned by POST /lowcode/sequences/:name/next.
type SequenceResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewSchemaDefinition builds a fresh draft from a create request.
func NewSchemaDefinition(req *CreateSchemaRequest) *SchemaDefinition {
	def := &SchemaDefinition{
		SchemaName:  req.SchemaName,
		TableName:   req.TableName,
		Description: req.Description,
		Status:      StatusDraft,
		Version:     1,
	}
	def.Fields, def.Indexes = cloneDefinition(req.Fields, req.Indexes)
	if def.TableName == "" {
		def.TableName = req.SchemaName
	}
	return def
}

// ApplyDraft copies the editable parts of req onto def.
func ApplyDraft(def *SchemaDefinition, req *UpdateDraftRequest) {
	if req.Description != nil {
		def.Description = *req.Description
	}
	def.Fields, def.Indexes = cloneDefinition(req.Fields, req.Indexes)
}

func cloneDefinition(fields []FieldDefinition, indexes []IndexDefinition) ([]FieldDefinition, []IndexDefinition) {
	tmp := SchemaDefinition{Fields: fields, Indexes: indexes}
	c := tmp.Clone()
	return c.Fields, c.Indexes
}

func ToSchemaResponse(def *SchemaDefinition) SchemaResponse {
	c := def.Clone()
	return SchemaResponse{
		ObjectId:         def.ObjectId.String(),
		SchemaName:       def.SchemaName,
		TableName:        def.TableName,
		Description:      def.Description,
		Status:           string(def.Status),
		Version:          def.Version,
		PublishedVersion: def.PublishedVersion,
		Fields:           c.Fields,
		Indexes:          c.Indexes,
		CreatedDate:      unixMillis(def.CreatedDate),
		LastUpdated:      unixMillis(def.LastUpdated),
	}
}

func NewPageDefinition(req *CreatePageRequest) *PageDefinition {
	layout := req.Layout
	if len(layout) == 0 {
		layout = json.RawMessage(`{}`)
	}
	return &PageDefinition{
		PageName:   req.PageName,
		SchemaName: req.SchemaName,
		Title:      req.Title,
		Layout:     append(json.RawMessage(nil), layout...),
	}
}

func ToPageResponse(p *PageDefinition) PageResponse {
	return PageResponse{
		ObjectId:    p.ObjectId.String(),
		PageName:    p.PageName,
		SchemaName:  p.SchemaName,
		Title:       p.Title,
		Layout:      p.Layout,
		CreatedDate: unixMillis(p.CreatedDate),
		LastUpdated: unixMillis(p.LastUpdated),
	}
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
