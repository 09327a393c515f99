package lowcode

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nimbleforge/forge/internal/middleware/authjwt"
	platformconfig "github.com/nimbleforge/forge/internal/platform/config"
	"github.com/nimbleforge/forge/lowcode/handlers"
)

// Resources checked by the permission middleware.
const (
	ResourceSchemas   = "lowcode/schemas"
	ResourceRecords   = "lowcode/records"
	ResourcePages     = "lowcode/pages"
	ResourceSequences = "lowcode/sequences"

	ActionRead  = "read"
	ActionWrite = "write"
)

type Handlers struct {
	SchemaHandler   *handlers.SchemaHandler
	RecordHandler   *handlers.RecordHandler
	PageHandler     *handlers.PageHandler
	SequenceHandler *handlers.SequenceHandler
}

// Authorize returns middleware admitting callers allowed to act on resource.
type Authorize func(resource, action string) fiber.Handler

// RegisterRoutes wires low-code endpoints under /lowcode. Every route needs a
// valid access token.
func RegisterRoutes(app fiber.Router, h *Handlers, cfg *platformconfig.Config, authorize Authorize) {
	group := app.Group("/lowcode", authjwt.New(authjwt.Config{PublicKey: cfg.JWT.PublicKey}))

	read := func(resource string) fiber.Handler { return authorize(resource, ActionRead) }
	write := func(resource string) fiber.Handler { return authorize(resource, ActionWrite) }

	group.Post("/schemas", write(ResourceSchemas), h.SchemaHandler.Create)
	group.Post("/schemas/query", read(ResourceSchemas), h.SchemaHandler.Query)
	group.Get("/schemas/:name", read(ResourceSchemas), h.SchemaHandler.Get)
	group.Put("/schemas/:name/draft", write(ResourceSchemas), h.SchemaHandler.UpdateDraft)
	group.Post("/schemas/:name/publish", write(ResourceSchemas), h.SchemaHandler.Publish)

	group.Post("/schemas/:name/records", write(ResourceRecords), h.RecordHandler.Insert)
	group.Post("/schemas/:name/records/query", read(ResourceRecords), h.RecordHandler.Query)

	group.Post("/pages", write(ResourcePages), h.PageHandler.Create)
	group.Get("/pages", read(ResourcePages), h.PageHandler.List)
	group.Get("/pages/:name", read(ResourcePages), h.PageHandler.Get)
	group.Delete("/pages/:name", write(ResourcePages), h.PageHandler.Delete)

	group.Post("/sequences/:name/next", write(ResourceSequences), h.SequenceHandler.Next)
}
