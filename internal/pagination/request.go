package pagination

import (
	"fmt"
	"net/url"

	"github.com/gorilla/schema"
	"github.com/nimbleforge/forge/internal/query"
)

var decoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// Request is the page selection carried in a query string (?size=20&current=2).
type Request struct {
	Size    *int   `schema:"size"`
	Current *int   `schema:"current"`
	Sort    string `schema:"sort"`
	Order   string `schema:"order"`
}

// DecodeRequest reads page parameters from URL query values.
func DecodeRequest(values url.Values) (*Request, error) {
	req := &Request{}
	if err := decoder.Decode(req, values); err != nil {
		return nil, fmt.Errorf("decode page request: %w", err)
	}
	return req, nil
}

// Condition converts the request into a query condition with no filter.
func (r *Request) Condition() *query.QueryCondition {
	cond := &query.QueryCondition{Size: r.Size, Current: r.Current}
	if r.Sort != "" {
		cond.OrderBy = []query.OrderBy{{Field: r.Sort, Direction: r.Order}}
	}
	return cond
}
