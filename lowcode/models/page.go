package models

import (
	"encoding/json"
	"time"

	uuid "github.com/gofrs/uuid"
)

// PageDefinition is a stored UI layout bound to a schema.
type PageDefinition struct {
	ObjectId    uuid.UUID       `json:"objectId" db:"id"`
	PageName    string          `json:"pageName" db:"page_name"`
	SchemaName  string          `json:"schemaName" db:"schema_name"`
	Title       string          `json:"title" db:"title"`
	Layout      json.RawMessage `json:"layout" db:"layout"`
	CreatedDate time.Time       `json:"createdDate" db:"created_date"`
	LastUpdated time.Time       `json:"lastUpdated" db:"last_updated"`
}
