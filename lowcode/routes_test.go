package lowcode

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	uuid "github.com/gofrs/uuid"
	"github.com/nimbleforge/forge/internal/cache"
	"github.com/nimbleforge/forge/internal/middleware/authjwt"
	platformconfig "github.com/nimbleforge/forge/internal/platform/config"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/internal/testutil"
	"github.com/nimbleforge/forge/internal/types"
	"github.com/nimbleforge/forge/lowcode/ddl"
	"github.com/nimbleforge/forge/lowcode/handlers"
	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/nimbleforge/forge/lowcode/registry"
	"github.com/nimbleforge/forge/lowcode/sequence"
	"github.com/nimbleforge/forge/lowcode/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app   *fiber.App
	repo  *services.MockRepository
	token string
}

func setupApp(t *testing.T) *testEnv {
	t.Helper()
	pub, priv := testutil.GenerateECDSAKeyPairPEM(t)
	cfg := &platformconfig.Config{JWT: platformconfig.JWTConfig{PublicKey: pub}}

	repo := new(services.MockRepository)
	compiler := query.NewCompiler(query.Options{DefaultPageSize: 10, MaxPageSize: 100})
	reg := registry.New(repo, compiler)
	counters := cache.NewService(cache.NewMemoryCache(0, 0), "test", time.Minute)
	gen := sequence.NewGenerator(counters)

	require.NoError(t, reg.Put(&models.SchemaDefinition{
		SchemaName: "ticket", TableName: "ticket", Status: models.StatusPublished, Version: 1,
		Fields: []models.FieldDefinition{
			{FieldName: "title", DbColumn: "title", LogicType: "string", Index: true},
			{FieldName: "qty", DbColumn: "qty", LogicType: "int", Nullable: true},
		},
	}))

	h := &Handlers{
		SchemaHandler:   handlers.NewSchemaHandler(services.NewSchemaService(repo, reg, ddl.NewBuilder(""), gen, compiler)),
		RecordHandler:   handlers.NewRecordHandler(services.NewRecordService(repo, reg, gen)),
		PageHandler:     handlers.NewPageHandler(services.NewPageService(repo, counters, compiler)),
		SequenceHandler: handlers.NewSequenceHandler(gen),
	}

	// Readers may read everything; only sequences are writable.
	authorize := func(resource, action string) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if action == ActionRead || resource == ResourceSequences {
				return c.Next()
			}
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"code": "FORBIDDEN"})
		}
	}

	app := fiber.New()
	RegisterRoutes(app, h, cfg, authorize)

	issuer, err := authjwt.NewIssuer(priv, "forge", time.Hour)
	require.NoError(t, err)
	token, _, err := issuer.Issue(types.UserContext{UserID: uuid.Must(uuid.NewV4()), Username: "reader"})
	require.NoError(t, err)

	return &testEnv{app: app, repo: repo, token: token}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(types.HeaderAuthorization, types.BearerPrefix+e.token)
	resp, err := e.app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestRoutes_RequireToken(t *testing.T) {
	env := setupApp(t)
	resp, err := env.app.Test(httptest.NewRequest("GET", "/lowcode/pages", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRoutes_QueryRecords(t *testing.T) {
	env := setupApp(t)
	env.repo.On("QueryRecords", mock.Anything, mock.MatchedBy(func(cq *query.CompiledQuery) bool {
		return cq.Table == "lc_ticket" && cq.Limit == 20 && cq.Offset == 20
	})).Return([]map[string]interface{}{{"title": "a"}}, int64(21), nil).Once()

	status, body := env.do(t, "POST", "/lowcode/schemas/ticket/records/query", `{
		"where": {"qty": {"_gt": 18}, "title": {"_like": "%John%"}},
		"orderBy": [{"field": "id", "direction": "desc"}],
		"size": 20, "current": 2
	}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 21, body["total"])
	assert.EqualValues(t, 2, body["pages"])
	assert.Equal(t, true, body["hasPrevious"])
	assert.Equal(t, false, body["hasNext"])
	env.repo.AssertExpectations(t)
}

func TestRoutes_QueryErrors(t *testing.T) {
	env := setupApp(t)

	status, body := env.do(t, "POST", "/lowcode/schemas/ticket/records/query", `{"where": {"secretColumn": {"_eq": 1}}}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, query.CodeUnknownField, body["code"])

	status, body = env.do(t, "POST", "/lowcode/schemas/ticket/records/query", `{"where": {"qty": {"_regex": "x"}}}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, query.CodeInvalidOperator, body["code"])

	status, body = env.do(t, "POST", "/lowcode/schemas/ticket/records/query", `{"size": 0}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, query.CodeInvalidPagination, body["code"])

	status, _ = env.do(t, "POST", "/lowcode/schemas/ticket/records/query", `{"where": `)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestRoutes_WriteForbidden(t *testing.T) {
	env := setupApp(t)
	status, body := env.do(t, "POST", "/lowcode/schemas/ticket/records", `{"title": "x"}`)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["code"])
	env.repo.AssertNotCalled(t, "InsertRecord", mock.Anything, mock.Anything, mock.Anything)
}

func TestRoutes_ListPages(t *testing.T) {
	env := setupApp(t)
	env.repo.On("QueryPages", mock.Anything, mock.MatchedBy(func(cq *query.CompiledQuery) bool {
		return cq.Limit == 2 && cq.Order[0].Direction == query.Desc
	})).Return([]*models.PageDefinition{{PageName: "tickets"}}, int64(1), nil).Once()

	status, body := env.do(t, "GET", "/lowcode/pages?size=2&sort=title&order=desc", "")
	assert.Equal(t, fiber.StatusOK, status)
	records := body["records"].([]interface{})
	assert.Equal(t, "tickets", records[0].(map[string]interface{})["pageName"])
}

func TestRoutes_SequenceNext(t *testing.T) {
	env := setupApp(t)
	status, body := env.do(t, "POST", "/lowcode/sequences/unknown/next", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "SEQUENCE_NOT_FOUND", body["code"])
}
