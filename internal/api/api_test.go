package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/zettel/internal/noteservice"
	"github.com/starford/zettel/internal/sse"
	"github.com/starford/zettel/internal/testutil"
)

var disabled = Auth{DefaultOwner: 1}

// testEnv sets up a temp SQLite DB, service and router.
func testEnv(t *testing.T, auth Auth) (*noteservice.Service, http.Handler) {
	t.Helper()
	db := testutil.TestDB(t)
	svc := noteservice.New(db, testutil.Logger())
	broker := sse.NewBroker(time.Second, OwnerFromRequest)
	t.Cleanup(broker.Close)
	return svc, NewRouter(svc, auth, broker, testutil.Logger())
}

func do(t *testing.T, router http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func createCapture(t *testing.T, router http.Handler, body map[string]any) CaptureDetail {
	t.Helper()
	w := do(t, router, http.MethodPost, "/captures", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[CaptureDetail](t, w)
}

func TestCreateAndGetCapture(t *testing.T) {
	_, router := testEnv(t, disabled)

	kickoff := createCapture(t, router, map[string]any{"content": "Agenda", "title": "Project Kickoff", "tags": []string{"Work"}})
	if kickoff.Slug != "project-kickoff" || len(kickoff.Tags) != 1 || kickoff.Tags[0] != "work" {
		t.Errorf("kickoff = %+v", kickoff)
	}

	created := createCapture(t, router, map[string]any{"content": "Meeting notes\n[[Project Kickoff]]"})
	if created.Title != "Meeting notes" || created.Slug != "meeting-notes" {
		t.Errorf("title/slug = %q/%q", created.Title, created.Slug)
	}

	w := do(t, router, http.MethodGet, fmt.Sprintf("/captures/%d", kickoff.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decode[CaptureDetail](t, w)
	if len(got.LinkedFrom) != 1 || got.LinkedFrom[0].ID != created.ID {
		t.Errorf("linked_from = %+v", got.LinkedFrom)
	}

	w = do(t, router, http.MethodGet, fmt.Sprintf("/captures/%d/links", created.ID), nil)
	links := decode[[]noteservice.LinkedNote](t, w)
	if len(links) != 1 || links[0].Title != "Project Kickoff" {
		t.Errorf("links = %+v", links)
	}
}

func TestCreateCapture_Validation(t *testing.T) {
	_, router := testEnv(t, disabled)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"missing content", map[string]any{"title": "x"}, http.StatusUnprocessableEntity},
		{"long tag", map[string]any{"content": "x", "tags": []string{string(bytes.Repeat([]byte("a"), 51))}}, http.StatusUnprocessableEntity},
		{"unknown type", map[string]any{"content": "x", "capture_type_id": 999}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/captures", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, disabled)
	c := createCapture(t, router, map[string]any{"content": "v1", "title": "Lock"})
	path := fmt.Sprintf("/captures/%d", c.ID)

	w := do(t, router, http.MethodPut, path, map[string]any{"content": "v2"}, "If-Match", `"`+c.Checksum+`"`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[CaptureDetail](t, w); got.Content != "v2" || got.Slug != "lock" {
		t.Errorf("updated = %+v", got)
	}

	w = do(t, router, http.MethodPut, path, map[string]any{"content": "v3"}, "If-Match", c.Checksum)
	if w.Code != http.StatusConflict {
		t.Errorf("stale update = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPut, path, map[string]any{"content": "v3"})
	if w.Code != http.StatusOK {
		t.Errorf("update without If-Match = %d, want 200", w.Code)
	}
}

func TestUpdateCapture_NullProjectClears(t *testing.T) {
	_, router := testEnv(t, disabled)
	w := do(t, router, http.MethodPost, "/projects", map[string]any{"name": "P"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create project = %d", w.Code)
	}
	p := decode[struct{ ID int64 }](t, w)
	c := createCapture(t, router, map[string]any{"content": "x", "project_id": p.ID})
	if c.ProjectID == nil {
		t.Fatal("project not assigned")
	}

	w = do(t, router, http.MethodPut, fmt.Sprintf("/captures/%d", c.ID), map[string]any{"title": "Kept project"})
	if got := decode[CaptureDetail](t, w); got.ProjectID == nil {
		t.Error("absent project_id cleared the project")
	}
	w = do(t, router, http.MethodPut, fmt.Sprintf("/captures/%d", c.ID), `{"project_id": null}`)
	if got := decode[CaptureDetail](t, w); got.ProjectID != nil {
		t.Errorf("project_id = %d, want null", *got.ProjectID)
	}
}

func TestDeleteCapture(t *testing.T) {
	_, router := testEnv(t, disabled)
	c := createCapture(t, router, map[string]any{"content": "bye"})
	path := fmt.Sprintf("/captures/%d", c.ID)

	if w := do(t, router, http.MethodDelete, path, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, path, nil); w.Code != http.StatusNotFound {
		t.Errorf("delete again = %d, want 404", w.Code)
	}
}

func TestGetCapture_BadID(t *testing.T) {
	_, router := testEnv(t, disabled)
	if w := do(t, router, http.MethodGet, "/captures/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d, want 400", w.Code)
	}
}

func TestListCaptures_NewestFirst(t *testing.T) {
	_, router := testEnv(t, disabled)
	a := createCapture(t, router, map[string]any{"content": "a"})
	b := createCapture(t, router, map[string]any{"content": "b"})

	w := do(t, router, http.MethodGet, "/captures", nil)
	items := decode[[]CaptureDetail](t, w)
	if len(items) != 2 || items[0].ID != b.ID || items[1].ID != a.ID {
		t.Errorf("order = %v", items)
	}
}

func TestLinkEndpoints(t *testing.T) {
	_, router := testEnv(t, disabled)
	src := createCapture(t, router, map[string]any{"content": "Source body", "title": "Source"})
	tgt := createCapture(t, router, map[string]any{"content": "Target body", "title": "Target Title"})
	body := map[string]any{"source_capture_id": src.ID, "target_capture_id": tgt.ID}

	w := do(t, router, http.MethodPost, "/captures/links", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create link = %d, body = %s", w.Code, w.Body.String())
	}
	res := decode[LinkResponse](t, w)
	if res.SourceCapture.Content != "Source body\n[[Target Title]]" || len(res.SourceCapture.LinksTo) != 1 {
		t.Errorf("source after link = %+v", res.SourceCapture)
	}

	w = do(t, router, http.MethodPost, "/captures/links", body)
	if w.Code != http.StatusOK {
		t.Errorf("repeat link = %d, want 200", w.Code)
	}
	if again := decode[LinkResponse](t, w); again.Link.ID != res.Link.ID || again.SourceCapture.Content != res.SourceCapture.Content {
		t.Errorf("repeat link changed state: %+v", again)
	}

	self := map[string]any{"source_capture_id": src.ID, "target_capture_id": src.ID}
	if w := do(t, router, http.MethodPost, "/captures/links", self); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("self link = %d, want 422", w.Code)
	}
	missing := map[string]any{"source_capture_id": src.ID, "target_capture_id": 9999}
	if w := do(t, router, http.MethodPost, "/captures/links", missing); w.Code != http.StatusNotFound {
		t.Errorf("missing target = %d, want 404", w.Code)
	}

	w = do(t, router, http.MethodDelete, fmt.Sprintf("/captures/links/%d", res.Link.ID), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete link = %d, body = %s", w.Code, w.Body.String())
	}
	got := decode[CaptureDetail](t, do(t, router, http.MethodGet, fmt.Sprintf("/captures/%d", src.ID), nil))
	if got.Content != "Source body" || len(got.LinksTo) != 0 {
		t.Errorf("after unlink = %+v", got)
	}
}

func TestDeleteLink_OtherOwnerForbidden(t *testing.T) {
	auth := Auth{Enabled: true, Tokens: map[string]int64{"alice": 1, "bob": 2}}
	_, router := testEnv(t, auth)
	post := func(token string, body map[string]any) CaptureDetail {
		w := do(t, router, http.MethodPost, "/captures", body, "Authorization", "Bearer "+token)
		if w.Code != http.StatusCreated {
			t.Fatalf("create = %d", w.Code)
		}
		return decode[CaptureDetail](t, w)
	}
	post("alice", map[string]any{"content": "t", "title": "T"})
	src := post("alice", map[string]any{"content": "see [[T]]", "title": "S"})

	path := fmt.Sprintf("/captures/links/%d", src.LinksTo[0].LinkID)
	if w := do(t, router, http.MethodDelete, path, nil, "Authorization", "Bearer bob"); w.Code != http.StatusForbidden {
		t.Errorf("bob delete = %d, want 403", w.Code)
	}
	if w := do(t, router, http.MethodGet, fmt.Sprintf("/captures/%d", src.ID), nil, "Authorization", "Bearer bob"); w.Code != http.StatusNotFound {
		t.Errorf("bob read = %d, want 404", w.Code)
	}
}

func TestPositionEndpoints(t *testing.T) {
	_, router := testEnv(t, disabled)
	c := createCapture(t, router, map[string]any{"content": "x"})

	w := do(t, router, http.MethodPut, fmt.Sprintf("/captures/%d/position", c.ID), map[string]any{"x": 0, "y": 150.5})
	if w.Code != http.StatusOK {
		t.Fatalf("position = %d, body = %s", w.Code, w.Body.String())
	}
	res := decode[PositionResponse](t, w)
	if *res.Capture.GraphX != 0 || *res.Capture.GraphY != 150.5 {
		t.Errorf("position = (%v, %v)", *res.Capture.GraphX, *res.Capture.GraphY)
	}

	w = do(t, router, http.MethodPut, fmt.Sprintf("/captures/%d/project-position", c.ID), map[string]any{"x": 10})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing y = %d, want 422", w.Code)
	}
}

func TestGraphEndpoint(t *testing.T) {
	_, router := testEnv(t, disabled)
	createCapture(t, router, map[string]any{"content": "b", "title": "B"})
	createCapture(t, router, map[string]any{"content": "[[B]]", "title": "A"})

	w := do(t, router, http.MethodGet, "/captures/graph", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("graph = %d", w.Code)
	}
	var g struct {
		Nodes []struct {
			ID   string `json:"id"`
			Data struct {
				Label  string `json:"label"`
				Status string `json:"status"`
			} `json:"data"`
		} `json:"nodes"`
		Edges []struct {
			ID     string `json:"id"`
			LinkID int64  `json:"linkId"`
		} `json:"edges"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &g); err != nil {
		t.Fatal(err)
	}
	if len(g.Nodes) != 2 || g.Nodes[0].Data.Label != "B" || g.Nodes[0].Data.Status != "fleeting" {
		t.Errorf("nodes = %+v", g.Nodes)
	}
	if len(g.Edges) != 1 || g.Edges[0].ID != "e1" || g.Edges[0].LinkID == 0 {
		t.Errorf("edges = %+v", g.Edges)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	_, router := testEnv(t, disabled)
	createCapture(t, router, map[string]any{"content": "x", "tags": []string{"alpha"}})

	types := decode[[]map[string]any](t, do(t, router, http.MethodGet, "/captures/types", nil))
	if len(types) == 0 {
		t.Error("no capture types")
	}
	statuses := decode[[]map[string]any](t, do(t, router, http.MethodGet, "/captures/statuses", nil))
	if len(statuses) == 0 {
		t.Error("no capture statuses")
	}
	tags := decode[[]map[string]any](t, do(t, router, http.MethodGet, "/captures/tags", nil))
	if len(tags) != 1 || tags[0]["name"] != "alpha" {
		t.Errorf("tags = %v", tags)
	}
}

func TestProjectEndpoints(t *testing.T) {
	_, router := testEnv(t, disabled)

	if w := do(t, router, http.MethodPost, "/projects", map[string]any{"description": "no name"}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("nameless project = %d, want 422", w.Code)
	}
	w := do(t, router, http.MethodPost, "/projects", map[string]any{"name": "Garden", "description": "beds"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create project = %d", w.Code)
	}
	p := decode[struct{ ID int64 }](t, w)
	path := fmt.Sprintf("/projects/%d", p.ID)

	w = do(t, router, http.MethodPut, path, map[string]any{"description": "raised beds"})
	if got := decode[map[string]any](t, w); got["name"] != "Garden" || got["description"] != "raised beds" {
		t.Errorf("updated = %v", got)
	}
	layout := map[string]any{"graph_x": 0, "graph_y": 0, "graph_width": 400, "graph_height": 300}
	if w := do(t, router, http.MethodPut, path+"/layout", layout); w.Code != http.StatusOK {
		t.Errorf("layout = %d, body = %s", w.Code, w.Body.String())
	}

	c := createCapture(t, router, map[string]any{"content": "tomatoes", "project_id": p.ID})
	if w := do(t, router, http.MethodDelete, path, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete project = %d", w.Code)
	}
	got := decode[CaptureDetail](t, do(t, router, http.MethodGet, fmt.Sprintf("/captures/%d", c.ID), nil))
	if got.ProjectID != nil {
		t.Errorf("capture kept deleted project %d", *got.ProjectID)
	}
	if w := do(t, router, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
		t.Errorf("get deleted project = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	auth := Auth{Enabled: true, Tokens: map[string]int64{"secret123": 7}}
	_, router := testEnv(t, auth)

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"valid token", []string{"Authorization", "Bearer secret123"}, http.StatusOK},
		{"missing token", nil, http.StatusUnauthorized},
		{"wrong token", []string{"Authorization", "Bearer wrong"}, http.StatusUnauthorized},
		{"empty bearer", []string{"Authorization", "Bearer "}, http.StatusUnauthorized},
		{"wrong scheme", []string{"Authorization", "Basic secret123"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodGet, "/captures", nil, tt.header...)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_OwnerOnContext(t *testing.T) {
	var got int64
	h := AuthMiddleware(Auth{Enabled: true, Tokens: map[string]int64{"tok": 42}})(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { got, _ = OwnerFrom(r.Context()) }))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != 42 {
		t.Errorf("owner = %d, want 42", got)
	}

	h = AuthMiddleware(disabled)(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { got, _ = OwnerFrom(r.Context()) }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != 1 {
		t.Errorf("disabled owner = %d, want 1", got)
	}
}

func TestEvents_AuthProtected(t *testing.T) {
	_, router := testEnv(t, Auth{Enabled: true, Tokens: map[string]int64{"tok": 1}})
	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}

	// The handler blocks until the request context ends.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
}
