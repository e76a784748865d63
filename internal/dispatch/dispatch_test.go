package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"

	"commbridge/internal/analytics"
	"commbridge/internal/audit"
	"commbridge/internal/community"
	"commbridge/internal/dashboard"
	"commbridge/internal/resolve"
)

type mutation struct {
	method string
	path   string
	body   any
}

type fakeTransport struct {
	responses map[string]string
	mutations []mutation
}

func (f *fakeTransport) Get(_ context.Context, path string, query url.Values) (json.RawMessage, error) {
	k := path
	if len(query) > 0 {
		k += "?" + query.Encode()
	}
	if resp, ok := f.responses[k]; ok {
		return json.RawMessage(resp), nil
	}
	return json.RawMessage(`{"data":[]}`), nil
}

func (f *fakeTransport) Mutate(_ context.Context, method, path string, body any) (json.RawMessage, error) {
	f.mutations = append(f.mutations, mutation{method: method, path: path, body: body})
	if resp, ok := f.responses[method+" "+path]; ok {
		return json.RawMessage(resp), nil
	}
	return json.RawMessage(`{}`), nil
}

func newRouter(ft *fakeTransport, auditLog *audit.Store) *Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := community.NewAPI(ft)
	return New(api, resolve.New(api), dashboard.New(api, logger), analytics.New(api, logger), auditLog, logger)
}

// memberPage builds a one-page member list of n users u1..un.
func memberPage(n int) string {
	rows := make([]string, n)
	for i := range rows {
		rows[i] = fmt.Sprintf(`{"id":"u%d","name":"User %02d","email":"u%d@x.com"}`, i+1, i+1, i+1)
	}
	return `{"data":[` + strings.Join(rows, ",") + `]}`
}

func errorEnvelope(t *testing.T, out map[string]any) string {
	t.Helper()
	msg, ok := out["error"].(string)
	if !ok {
		t.Fatalf("expected error envelope, got %v", out)
	}
	return msg
}

func TestMembersList_PaginationMidList(t *testing.T) {
	ft := &fakeTransport{responses: map[string]string{
		"/users?limit=100": memberPage(23),
	}}
	r := newRouter(ft, nil)

	out := r.Handle(context.Background(), Request{Mode: "members", Limit: 5, Offset: 10})
	if out["count"] != 5 || out["total"] != 23 {
		t.Errorf("count/total = %v/%v, want 5/23", out["count"], out["total"])
	}
	if out["has_more"] != true || out["next_offset"] != 15 {
		t.Errorf("has_more/next_offset = %v/%v, want true/15", out["has_more"], out["next_offset"])
	}
	members := out["members"].([]map[string]any)
	if members[0]["name"] != "User 11" {
		t.Errorf("first member = %v, want User 11 (offset applied)", members[0]["name"])
	}
}

func TestMembersList_PaginationLastPage(t *testing.T) {
	ft := &fakeTransport{responses: map[string]string{
		"/users?limit=100": memberPage(23),
	}}
	r := newRouter(ft, nil)

	out := r.Handle(context.Background(), Request{Mode: "members", Limit: 5, Offset: 20})
	if out["count"] != 3 {
		t.Errorf("count = %v, want 3", out["count"])
	}
	if out["has_more"] != false {
		t.Errorf("has_more = %v, want false", out["has_more"])
	}
	if _, present := out["next_offset"]; present {
		t.Error("next_offset present on the final page")
	}
}

func TestMembersList_NegativeOffsetClampsToStart(t *testing.T) {
	ft := &fakeTransport{responses: map[string]string{
		"/users?limit=100": memberPage(3),
	}}
	r := newRouter(ft, nil)

	out := r.Handle(context.Background(), Request{Mode: "members", Limit: 2, Offset: -1})
	if _, failed := out["error"]; failed {
		t.Fatalf("out = %v, want a page, not an error", out)
	}
	if out["count"] != 2 {
		t.Errorf("count = %v, want 2", out["count"])
	}
	members := out["members"].([]map[string]any)
	if members[0]["name"] != "User 01" {
		t.Errorf("first member = %v, want the list start", members[0]["name"])
	}
}

func TestMembersList_OffsetPastEnd(t *testing.T) {
	ft := &fakeTransport{responses: map[string]string{
		"/users?limit=100": memberPage(3),
	}}
	r := newRouter(ft, nil)

	out := r.Handle(context.Background(), Request{Mode: "members", Limit: 5, Offset: 50})
	if out["count"] != 0 || out["has_more"] != false {
		t.Errorf("out = %v, want empty page, has_more false", out)
	}
}

func TestMembersGet_MissingUserIsValidationError(t *testing.T) {
	r := newRouter(&fakeTransport{}, nil)

	out := r.Handle(context.Background(), Request{Mode: "members", Action: "get"})
	msg := errorEnvelope(t, out)
	if !strings.Contains(msg, "user") {
		t.Errorf("error = %q, want the missing field named", msg)
	}
}

func TestHandle_UnknownModeListsModes(t *testing.T) {
	r := newRouter(&fakeTransport{}, nil)

	out := r.Handle(context.Background(), Request{Mode: "bogus"})
	msg := errorEnvelope(t, out)
	if !strings.Contains(msg, `mode not found: "bogus"`) || !strings.Contains(msg, "dashboard") {
		t.Errorf("error = %q, want unknown mode with suggestions", msg)
	}
}

func TestThreads_RequiresChannel(t *testing.T) {
	r := newRouter(&fakeTransport{}, nil)

	out := r.Handle(context.Background(), Request{Mode: "threads"})
	msg := errorEnvelope(t, out)
	if !strings.Contains(msg, "channel") {
		t.Errorf("error = %q, want channel named", msg)
	}
}

func TestThreads_SortedNewestFirstAndLimited(t *testing.T) {
	ft := &fakeTransport{responses: map[string]string{
		"/channels": `{"data":[{"id":"c1","name":"General"}]}`,
		"/channels/c1/threads": `{"data":[
			{"id":"t-old","title":"Old","author_id":"u1","created_at":"2025-06-01T10:00:00Z"},
			{"id":"t-new","title":"New","author_id":"u1","created_at":"2025-06-10T10:00:00Z"},
			{"id":"t-mid","title":"Mid","author_id":"u1","created_at":"2025-06-05T10:00:00Z"}
		]}`,
	}}
	r := newRouter(ft, nil)

	out := r.Handle(context.Background(), Request{Mode: "threads", Channel: "general", Limit: 2})
	if out["channel_id"] != "c1" {
		t.Fatalf("channel_id = %v (resolution failed?): %v", out["channel_id"], out)
	}
	rows := out["threads"].([]map[string]any)
	if len(rows) != 2 {
		t.Fatalf("threads = %v, want limit 2 applied", rows)
	}
	if rows[0]["id"] != "t-new" || rows[1]["id"] != "t-mid" {
		t.Errorf("order = %v, %v, want newest first", rows[0]["id"], rows[1]["id"])
	}
}

func TestPost_MissingFieldsListedTogether(t *testing.T) {
	r := newRouter(&fakeTransport{}, nil)

	out := r.Handle(context.Background(), Request{Mode: "post", Channel: "general"})
	msg := errorEnvelope(t, out)
	if !strings.Contains(msg, "title") || !strings.Contains(msg, "content") {
		t.Errorf("error = %q, want both missing fields", msg)
	}
}

func TestPost_ResolvesChannelThenCreates(t *testing.T) {
	ft := &fakeTransport{responses: map[string]string{
		"/channels":                `{"data":[{"id":"c1","name":"General"}]}`,
		"PUT /channels/c1/threads": `{"id":"t-99","title":"Hello"}`,
	}}
	r := newRouter(ft, nil)

	out := r.Handle(context.Background(), Request{
		Mode: "post", Channel: "General", Title: "Hello", Content: "First post",
	})
	if out["posted"] != true || out["thread_id"] != "t-99" {
		t.Fatalf("out = %v", out)
	}
	if len(ft.mutations) != 1 {
		t.Fatalf("mutations = %v, want exactly one", ft.mutations)
	}
	m := ft.mutations[0]
	if m.method != "PUT" || m.path != "/channels/c1/threads" {
		t.Errorf("mutation = %s %s", m.method, m.path)
	}
}

func TestDM_ResolvesUserByEmail(t *testing.T) {
	ft := &fakeTransport{responses: map[string]string{
		"/users?email=pat%40x.com": `{"data":[{"id":"u7","name":"Pat","email":"pat@x.com"}]}`,
	}}
	r := newRouter(ft, nil)

	out := r.Handle(context.Background(), Request{Mode: "dm", User: "pat@x.com", Message: "hi"})
	if out["sent"] != true || out["recipient"] != "Pat" {
		t.Fatalf("out = %v", out)
	}
	if len(ft.mutations) != 1 || ft.mutations[0].path != "/users/u7/messages" {
		t.Errorf("mutations = %v", ft.mutations)
	}
}

func TestDM_AmbiguousUserSurfacesCandidates(t *testing.T) {
	ft := &fakeTransport{responses: map[string]string{
		"/users?limit=100": `{"data":[
			{"id":"u1","name":"Alex Chen","email":"alex.chen@example.com"},
			{"id":"u2","name":"Alex Rivera","email":"alex.rivera@example.com"}
		]}`,
	}}
	r := newRouter(ft, nil)

	out := r.Handle(context.Background(), Request{Mode: "dm", User: "Alex", Message: "hi"})
	msg := errorEnvelope(t, out)
	if !strings.Contains(msg, "Alex Chen (alex.chen@example.com)") ||
		!strings.Contains(msg, "Alex Rivera (alex.rivera@example.com)") {
		t.Errorf("error = %q, want both candidates listed", msg)
	}
	if len(ft.mutations) != 0 {
		t.Errorf("ambiguity must not trigger a write: %v", ft.mutations)
	}
}

func TestEvents_CreateValidatesThenMutates(t *testing.T) {
	ft := &fakeTransport{responses: map[string]string{
		"PUT /events": `{"id":"e-new","name":"Launch"}`,
	}}
	r := newRouter(ft, nil)

	out := r.Handle(context.Background(), Request{Mode: "events", Action: "create"})
	msg := errorEnvelope(t, out)
	if !strings.Contains(msg, "name") || !strings.Contains(msg, "starts_at") {
		t.Fatalf("error = %q, want both missing fields", msg)
	}
	if len(ft.mutations) != 0 {
		t.Fatalf("validation failure must not reach the network: %v", ft.mutations)
	}

	out = r.Handle(context.Background(), Request{
		Mode: "events", Action: "create",
		Name: "Launch", StartsAt: "2025-07-01T18:00:00Z", Duration: 60,
	})
	if out["created"] != true || out["event_id"] != "e-new" {
		t.Fatalf("out = %v", out)
	}
}

func TestCourses_ProgressFilterByID(t *testing.T) {
	ft := &fakeTransport{responses: map[string]string{
		"/users?limit=100": `{"data":[{"id":"U","name":"Uma","email":"u@x.com","completed_lessons":[{"lesson_id":"L1"}]}]}`,
		"/courses": `{"data":[
			{"id":"crs1","name":"Basics","lessons":["L1","L2"]},
			{"id":"crs2","name":"Advanced","lessons":["L9"]}
		]}`,
	}}
	r := newRouter(ft, nil)

	out := r.Handle(context.Background(), Request{Mode: "courses", Action: "progress", CourseID: "crs1"})
	rows := out["courses"].([]map[string]any)
	if len(rows) != 1 || rows[0]["course"] != "Basics" {
		t.Fatalf("rows = %v, want only crs1", rows)
	}
}

func TestManage_HistoryWithoutAuditLog(t *testing.T) {
	r := newRouter(&fakeTransport{}, nil)

	out := r.Handle(context.Background(), Request{Mode: "manage", Action: "history"})
	if out["note"] != "audit log unavailable" {
		t.Errorf("out = %v, want unavailable note, not an error", out)
	}
}

func TestManage_HistoryRecordsInvocations(t *testing.T) {
	store, err := audit.New("")
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}
	defer store.Close()
	r := newRouter(&fakeTransport{responses: map[string]string{
		"/channels": `{"data":[{"id":"c1","name":"General"}]}`,
	}}, store)

	r.Handle(context.Background(), Request{Mode: "channels"})
	r.Handle(context.Background(), Request{Mode: "bogus"})

	out := r.Handle(context.Background(), Request{Mode: "manage", Action: "history"})
	entries := out["history"].([]audit.Entry)
	// Newest first; the history call itself is recorded after it reads.
	if len(entries) != 2 {
		t.Fatalf("entries = %v, want the two prior invocations", entries)
	}
	if entries[0].Mode != "bogus" || entries[0].Outcome != "error" {
		t.Errorf("entries[0] = %+v, want failed bogus call", entries[0])
	}
	if entries[1].Mode != "channels" || entries[1].Outcome != "ok" {
		t.Errorf("entries[1] = %+v, want successful channels call", entries[1])
	}
}

func TestManage_UnknownActionSuggestsValid(t *testing.T) {
	r := newRouter(&fakeTransport{}, nil)

	out := r.Handle(context.Background(), Request{Mode: "manage", Action: "promote"})
	msg := errorEnvelope(t, out)
	if !strings.Contains(msg, "remove") || !strings.Contains(msg, "history") {
		t.Errorf("error = %q, want valid actions suggested", msg)
	}
}

func TestManage_RemoveResolvesFirst(t *testing.T) {
	ft := &fakeTransport{responses: map[string]string{
		"/users?limit=100": `{"data":[{"id":"u3","name":"Sam","email":"sam@x.com"}]}`,
	}}
	r := newRouter(ft, nil)

	out := r.Handle(context.Background(), Request{Mode: "manage", Action: "remove", User: "Sam"})
	if out["done"] != true || out["user_id"] != "u3" {
		t.Fatalf("out = %v", out)
	}
	if len(ft.mutations) != 1 {
		t.Fatalf("mutations = %v", ft.mutations)
	}
	if ft.mutations[0].method != "DELETE" || ft.mutations[0].path != "/users/u3" {
		t.Errorf("mutation = %s %s", ft.mutations[0].method, ft.mutations[0].path)
	}
}
