package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"vahan-ops/config"
	"vahan-ops/core/auth"
	"vahan-ops/core/incidents"
	"vahan-ops/core/lifecycle"
	"vahan-ops/core/rbac"
	"vahan-ops/core/screening"
	"vahan-ops/core/store"
	"vahan-ops/pkg/logger"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	db, err := store.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.Migrate(db, "sqlite"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.AppConfig{
		SessionTTL: time.Hour,
		Incidents:  config.IncidentsConfig{RegNoFormat: "CHN-{year}-{seq:05}", TATWindowDays: 45},
		Uploads:    config.UploadsConfig{BulkUpdateMaxBytes: 10 << 20, DocumentMaxBytes: 10 << 20},
	}
	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	audits := store.NewAuditStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	policy, err := rbac.NewPolicy()
	if err != nil {
		t.Fatalf("build policy: %v", err)
	}
	log := logger.New("error")
	s := NewServer(cfg, ServerDeps{
		Users:          users,
		Sessions:       sessions,
		Audits:         audits,
		IncidentsSvc:   incidents.NewService(cfg, incidentsStore, audits, log),
		ScreeningStore: screening.NewMemoryStore(time.Hour),
		Policy:         policy,
		SessionManager: auth.NewSessionManager(users, sessions, cfg),
		Logger:         log,
	})
	return s, s.Router()
}

func seedUser(t *testing.T, s *Server, username, password, role string) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	err = s.users.CreateUser(context.Background(), &store.User{
		ID:           "u-" + username,
		Username:     username,
		FullName:     username,
		Role:         role,
		PasswordHash: hash,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func login(t *testing.T, router http.Handler, username, password string) *http.Cookie {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("login failed with %d: %s", rr.Code, rr.Body.String())
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatalf("login response carried no session cookie")
	return nil
}

func doJSON(t *testing.T, router http.Handler, cookie *http.Cookie, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRouterRejectsAnonymousAPIAccess(t *testing.T) {
	_, router := newTestServer(t)
	rr := doJSON(t, router, nil, http.MethodGet, "/api/incidents", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", rr.Code)
	}
}

func TestRouterAgentCannotManageIncidents(t *testing.T) {
	s, router := newTestServer(t)
	seedUser(t, s, "agent1", "secret-pw", "agent")
	cookie := login(t, router, "agent1", "secret-pw")

	rr := doJSON(t, router, cookie, http.MethodPost, "/api/incidents/move-queue", map[string]any{
		"incident_ids": []string{"i1"},
		"target_queue": "screening",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden for agent, got %d", rr.Code)
	}

	if rr := doJSON(t, router, cookie, http.MethodGet, "/api/incidents", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected agent to read incidents, got %d", rr.Code)
	}
}

func TestRouterIncidentLifecycleFlow(t *testing.T) {
	s, router := newTestServer(t)
	seedUser(t, s, "ops1", "secret-pw", "operator")
	cookie := login(t, router, "ops1", "secret-pw")

	rr := doJSON(t, router, cookie, http.MethodPost, "/api/incidents", map[string]any{
		"challan_number": "CH900",
		"vehicle_plate":  "mh12ab1234",
		"type":           "contest",
		"challan_type":   "court",
		"fine_amount":    2000,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create incident failed with %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID           string `json:"id"`
		IncidentID   string `json:"incident_id"`
		VehiclePlate string `json:"vehicle_plate"`
		Queue        string `json:"queue"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.IncidentID == "" || !strings.HasPrefix(created.IncidentID, "CHN-") {
		t.Fatalf("expected generated incident id, got %q", created.IncidentID)
	}
	if created.VehiclePlate != "MH12AB1234" {
		t.Fatalf("expected normalized plate, got %q", created.VehiclePlate)
	}
	if created.Queue != "newIncidents" {
		t.Fatalf("expected newIncidents queue, got %q", created.Queue)
	}

	rr = doJSON(t, router, cookie, http.MethodPost, "/api/incidents/move-queue", map[string]any{
		"incident_ids": []string{created.ID},
		"target_queue": "screening",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("move-queue failed with %d: %s", rr.Code, rr.Body.String())
	}
	var moved struct {
		Applied  []string          `json:"applied"`
		Rejected map[string]string `json:"rejected"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &moved); err != nil {
		t.Fatalf("decode move response: %v", err)
	}
	if len(moved.Applied) != 1 || moved.Applied[0] != created.ID {
		t.Fatalf("expected move applied to %s, got %+v", created.ID, moved)
	}

	rr = doJSON(t, router, cookie, http.MethodPost, "/api/incidents/move-queue", map[string]any{
		"incident_ids": []string{created.ID},
		"target_queue": "nosuchqueue",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for unknown queue, got %d", rr.Code)
	}

	rr = doJSON(t, router, cookie, http.MethodGet, "/api/incidents/"+created.ID+"/timeline", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("timeline failed with %d", rr.Code)
	}
	var timeline struct {
		Items []struct {
			Action string `json:"action"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &timeline); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	if len(timeline.Items) != 2 || timeline.Items[0].Action != "queue_changed" {
		t.Fatalf("unexpected timeline %+v", timeline.Items)
	}
}

func TestRouterCreateDuplicateChallanConflicts(t *testing.T) {
	s, router := newTestServer(t)
	seedUser(t, s, "ops1", "secret-pw", "operator")
	cookie := login(t, router, "ops1", "secret-pw")

	payload := map[string]any{
		"challan_number": "CH900",
		"vehicle_plate":  "MH12AB1234",
		"type":           "contest",
		"challan_type":   "court",
	}
	if rr := doJSON(t, router, cookie, http.MethodPost, "/api/incidents", payload); rr.Code != http.StatusCreated {
		t.Fatalf("create incident failed with %d", rr.Code)
	}
	if rr := doJSON(t, router, cookie, http.MethodPost, "/api/incidents", payload); rr.Code != http.StatusConflict {
		t.Fatalf("expected conflict for duplicate challan, got %d", rr.Code)
	}
}

func TestRouterScreeningSessionFlow(t *testing.T) {
	s, router := newTestServer(t)
	seedUser(t, s, "ops1", "secret-pw", "operator")
	cookie := login(t, router, "ops1", "secret-pw")

	rr := doJSON(t, router, cookie, http.MethodPost, "/api/incidents", map[string]any{
		"challan_number": "CH1",
		"vehicle_plate":  "MH12AB1234",
		"type":           "contest",
		"challan_type":   "court",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create incident failed with %d", rr.Code)
	}

	rr = doJSON(t, router, cookie, http.MethodPost, "/api/screening/sessions", map[string]any{
		"kind":         "screen",
		"incident_ids": []string{"i1"},
		"results": []lifecycle.ScreeningResult{
			{ChallanNumber: "CH1", ViolaterName: "R. Sharma", State: "MH"},
			{ChallanNumber: "CH2", ViolaterName: "R. Sharma", State: "KA"},
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("start session failed with %d: %s", rr.Code, rr.Body.String())
	}
	var started struct {
		ID       string   `json:"id"`
		Selected []string `json:"selected"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if len(started.Selected) != 2 {
		t.Fatalf("expected every result pre-selected, got %v", started.Selected)
	}

	rr = doJSON(t, router, cookie, http.MethodPost, "/api/screening/sessions/"+started.ID+"/toggle", map[string]any{
		"challan_number": "CH2",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("toggle failed with %d", rr.Code)
	}

	rr = doJSON(t, router, cookie, http.MethodPost, "/api/screening/sessions/"+started.ID+"/confirm", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm failed with %d: %s", rr.Code, rr.Body.String())
	}
	var confirmed struct {
		ChallanNumbers []string `json:"challan_numbers"`
		IncidentIDs    []string `json:"incident_ids"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &confirmed); err != nil {
		t.Fatalf("decode confirm: %v", err)
	}
	if len(confirmed.ChallanNumbers) != 1 || confirmed.ChallanNumbers[0] != "CH1" {
		t.Fatalf("expected only CH1 confirmed, got %v", confirmed.ChallanNumbers)
	}
	if len(confirmed.IncidentIDs) != 1 {
		t.Fatalf("expected one matched incident, got %v", confirmed.IncidentIDs)
	}

	// The batch is consumed on confirm.
	rr = doJSON(t, router, cookie, http.MethodGet, "/api/screening/sessions/"+started.ID, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected session gone after confirm, got %d", rr.Code)
	}
}

func TestRouterBulkUpdateTemplateDownload(t *testing.T) {
	s, router := newTestServer(t)
	seedUser(t, s, "ops1", "secret-pw", "operator")
	cookie := login(t, router, "ops1", "secret-pw")

	rr := doJSON(t, router, cookie, http.MethodGet, "/api/incidents/bulk-update/template", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("template failed with %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected csv content type, got %q", ct)
	}
	firstLine := strings.SplitN(rr.Body.String(), "\n", 2)[0]
	if !strings.HasPrefix(firstLine, "incident_id,challan_number") {
		t.Fatalf("unexpected template header %q", firstLine)
	}
}

func TestRouterLogsRequireAdmin(t *testing.T) {
	s, router := newTestServer(t)
	seedUser(t, s, "ops1", "secret-pw", "operator")
	seedUser(t, s, "root", "secret-pw", "admin")

	opsCookie := login(t, router, "ops1", "secret-pw")
	if rr := doJSON(t, router, opsCookie, http.MethodGet, "/api/logs", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden for operator, got %d", rr.Code)
	}

	adminCookie := login(t, router, "root", "secret-pw")
	if rr := doJSON(t, router, adminCookie, http.MethodGet, "/api/logs", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected logs for admin, got %d", rr.Code)
	}
}

// Every authenticated API route must be wrapped in a permission guard; the
// source check keeps new routes from slipping in unguarded.
func TestAPIRoutesCarryPermissionGuards(t *testing.T) {
	raw, err := os.ReadFile("server.go")
	if err != nil {
		t.Fatalf("read server.go: %v", err)
	}
	inGroup := false
	for i, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.Contains(trimmed, "r.Group(func(r chi.Router)") {
			inGroup = true
			continue
		}
		if !inGroup {
			continue
		}
		if !strings.HasPrefix(trimmed, "r.Get(") && !strings.HasPrefix(trimmed, "r.Post(") &&
			!strings.HasPrefix(trimmed, "r.Patch(") && !strings.HasPrefix(trimmed, "r.Delete(") {
			continue
		}
		if strings.Contains(trimmed, "\"/api/auth/me\"") {
			continue
		}
		guarded := false
		for _, guard := range []string{"view(", "manage(", "screen(", "admin("} {
			if strings.Contains(trimmed, guard) {
				guarded = true
				break
			}
		}
		if !guarded {
			t.Fatalf("unguarded route at server.go:%d -> %s", i+1, trimmed)
		}
	}
}
