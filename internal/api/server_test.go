package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dirsync/internal/app"
	"github.com/roach88/dirsync/internal/engine"
	"github.com/roach88/dirsync/internal/model"
)

const (
	researcher = "researcher-1"
	reviewer   = "reviewer"
)

type testServer struct {
	t      *testing.T
	app    *app.App
	router *gin.Engine
}

func setupTestRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	a, err := app.Open(context.Background(), app.Options{
		Database: filepath.Join(t.TempDir(), "dirsync.db"),
		IDs:      engine.NewSequenceGenerator("item"),
		Sessions: engine.NewSequenceGenerator("session"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return &testServer{t: t, app: a, router: NewServer(a).Router()}
}

// do sends a request as actor ("" for anonymous). Admin rights are granted
// to the reviewer.
func (s *testServer) do(method, path, actor string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(HeaderActor, actor)
	}
	if actor == reviewer {
		req.Header.Set(HeaderAdmin, "true")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func syncedPublication(title string) app.NewItem {
	return app.NewItem{
		EntityType: "CvPublication",
		Metadata: model.Metadata{
			"dc.title":                 {model.V(title)},
			"perucris.sync.directorio": {model.V("true")},
		},
	}
}

func TestHealthz(t *testing.T) {
	s := setupTestRouter(t)
	w := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "outbound")
}

func TestCreateItem_ReviewApprovePublishes(t *testing.T) {
	s := setupTestRouter(t)

	w := s.do(http.MethodPost, "/api/v1/items", researcher, syncedPublication("Graphene"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cv := decode[model.Item](t, w)
	assert.Equal(t, researcher, cv.Owner)

	w = s.do(http.MethodGet, "/api/v1/workflows?state=review", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	reviews := decode[[]model.WorkflowItem](t, w)
	require.Len(t, reviews, 1)

	w = s.do(http.MethodPost, "/api/v1/workflows/"+reviews[0].ID+"/decision", reviewer, map[string]string{"action": "approve"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/workflows/"+reviews[0].ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StateComplete, decode[model.WorkflowItem](t, w).State)

	w = s.do(http.MethodGet, "/api/v1/items/"+reviews[0].ItemID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	shadow := decode[model.Item](t, w)
	assert.True(t, shadow.Archived)
	assert.Equal(t, "Publication", shadow.EntityType)

	w = s.do(http.MethodGet, "/api/v1/items/"+shadow.ID+"/provenance", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[[]model.ProvenanceEntry](t, w))
}

func TestDecide_RejectsUnknownAction(t *testing.T) {
	s := setupTestRouter(t)
	w := s.do(http.MethodPost, "/api/v1/workflows/wf-x/decision", reviewer, map[string]string{"action": "shrug"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecide_RequiresReviewer(t *testing.T) {
	s := setupTestRouter(t)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/v1/items", researcher, syncedPublication("Self review")).Code)
	reviews := decode[[]model.WorkflowItem](t, s.do(http.MethodGet, "/api/v1/workflows?state=review", "", nil))
	require.Len(t, reviews, 1)

	w := s.do(http.MethodPost, "/api/v1/workflows/"+reviews[0].ID+"/decision", researcher, map[string]string{"action": "approve"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_AUTHORIZED", decode[APIError](t, w).Code)
}

func TestWritesRequireActor(t *testing.T) {
	s := setupTestRouter(t)
	w := s.do(http.MethodPost, "/api/v1/items", "", syncedPublication("Anonymous"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetItem_NotFound(t *testing.T) {
	s := setupTestRouter(t)
	w := s.do(http.MethodGet, "/api/v1/items/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[APIError](t, w).Code)
}

func TestCreateItem_UnknownTypeIsUnprocessable(t *testing.T) {
	s := setupTestRouter(t)
	w := s.do(http.MethodPost, "/api/v1/items", researcher, app.NewItem{EntityType: "CvRecipe"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "CONFIGURATION", decode[APIError](t, w).Code)
}

func TestUpdateItem(t *testing.T) {
	s := setupTestRouter(t)
	cv := decode[model.Item](t, s.do(http.MethodPost, "/api/v1/items", researcher, app.NewItem{
		EntityType: "CvPublication",
		Metadata:   model.Metadata{"dc.title": {model.V("Draft")}},
	}))

	body := UpdateItemRequest{Metadata: model.Metadata{"dc.title": {model.V("Final")}}}

	w := s.do(http.MethodPatch, "/api/v1/items/"+cv.ID, "stranger", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPatch, "/api/v1/items/"+cv.ID, researcher, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[model.Item](t, w)
	assert.Equal(t, "Final", updated.Title())
}

func TestWithdrawAndReinstate(t *testing.T) {
	s := setupTestRouter(t)
	org := decode[model.Item](t, s.do(http.MethodPost, "/api/v1/items", reviewer, app.NewItem{
		EntityType: "OrgUnit",
		Metadata:   model.Metadata{"dc.title": {model.V("Faculty of Science")}},
	}))

	w := s.do(http.MethodPost, "/api/v1/items/"+org.ID+"/withdraw", reviewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[model.Item](t, w).Withdrawn)

	w = s.do(http.MethodPost, "/api/v1/items/"+org.ID+"/reinstate", reviewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[model.Item](t, w).Withdrawn)
}

func TestFireEvent(t *testing.T) {
	s := setupTestRouter(t)
	cv := decode[model.Item](t, s.do(http.MethodPost, "/api/v1/items", researcher, syncedPublication("Redelivered")))

	for range 2 {
		w := s.do(http.MethodPost, "/api/v1/items/"+cv.ID+"/events", "", FireEventRequest{Kind: "modify_metadata"})
		assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	}

	w := s.do(http.MethodGet, "/api/v1/items/"+cv.ID+"/relationships", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Relationship](t, w), 1, "one clone edge regardless of redelivery")

	w = s.do(http.MethodPost, "/api/v1/items/"+cv.ID+"/events", "", FireEventRequest{Kind: "explode"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestItemWorkflow(t *testing.T) {
	s := setupTestRouter(t)
	cv := decode[model.Item](t, s.do(http.MethodPost, "/api/v1/items", researcher, syncedPublication("Tracked")))

	w := s.do(http.MethodGet, "/api/v1/items/"+cv.ID+"/workflow", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "the CV entity itself is never under workflow")

	rels := decode[[]model.Relationship](t, s.do(http.MethodGet, "/api/v1/items/"+cv.ID+"/relationships", "", nil))
	require.Len(t, rels, 1)
	cloneID := rels[0].LeftID

	w = s.do(http.MethodGet, "/api/v1/items/"+cloneID+"/workflow", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StateWaitForConcytec, decode[model.WorkflowItem](t, w).State)
}

func TestJudgeDuplicate(t *testing.T) {
	s := setupTestRouter(t)
	req := VerdictRequest{ItemID: "item-a", DuplicateID: "item-b", Verdict: app.VerdictVerify}

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/v1/dedup/verdicts", researcher, req).Code)

	bad := req
	bad.Verdict = "perhaps"
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/dedup/verdicts", reviewer, bad).Code)
}

func TestClassify(t *testing.T) {
	status, body := classify(model.NewIllegalStateError("item-1", "clone has no CV entity"))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "item-1", body.ItemID)
}
