package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rflorenc/psa-automation-workbench/internal/models"
)

func newTestServer() (*Server, http.Handler) {
	s := &Server{
		Connections: models.NewConnectionStore(),
		Runs:        models.NewRunStore(),
	}
	return s, NewRouter(s)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateConnection(t *testing.T) {
	_, h := newTestServer()

	rec := doJSON(t, h, "POST", "/api/connections", `{
		"name": "prod",
		"host": "psa.example.com",
		"username": "api@user",
		"secret": "s3cret",
		"integration_code": "INTEG"
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var conn models.Connection
	json.Unmarshal(rec.Body.Bytes(), &conn)
	if conn.ID == "" {
		t.Error("response has no connection ID")
	}
	if conn.Scheme != "https" || conn.Port != 443 {
		t.Errorf("defaults not applied: scheme=%q port=%d", conn.Scheme, conn.Port)
	}
	if strings.Contains(rec.Body.String(), "s3cret") {
		t.Error("secret leaked into the response body")
	}
}

func TestCreateConnection_Validation(t *testing.T) {
	_, h := newTestServer()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing host", `{"username":"u","secret":"s","integration_code":"i"}`, "host is required"},
		{"missing credentials", `{"host":"psa.example.com"}`, "integration_code are required"},
		{"bad json", `{`, "invalid JSON"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, "POST", "/api/connections", tc.body)
			if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), tc.want) {
				t.Errorf("status = %d, body = %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestConnectionLifecycle(t *testing.T) {
	s, h := newTestServer()
	conn := &models.Connection{Name: "prod", Scheme: "https", Host: "psa.example.com", Port: 443,
		Username: "u", Secret: "s", IntegrationCode: "i"}
	s.Connections.Create(conn)

	rec := doJSON(t, h, "GET", "/api/connections", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), conn.ID) {
		t.Errorf("list: status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, "PUT", "/api/connections/"+conn.ID, `{"name":"renamed","host":"psa.example.com"}`)
	if rec.Code != http.StatusOK || s.Connections.Get(conn.ID).Name != "renamed" {
		t.Errorf("update: status = %d, name = %q", rec.Code, s.Connections.Get(conn.ID).Name)
	}

	rec = doJSON(t, h, "DELETE", "/api/connections/"+conn.ID, "")
	if rec.Code != http.StatusNoContent || s.Connections.Get(conn.ID) != nil {
		t.Errorf("delete: status = %d", rec.Code)
	}

	rec = doJSON(t, h, "DELETE", "/api/connections/"+conn.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d", rec.Code)
	}
}

func TestRunEndpoints(t *testing.T) {
	s, h := newTestServer()
	run := s.Runs.Create("contact-move", "conn-1", false)

	rec := doJSON(t, h, "GET", "/api/runs/"+run.ID, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "contact-move") {
		t.Errorf("get run: status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, "GET", "/api/runs/"+run.ID+"/report", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("report while running: status = %d, want 409", rec.Code)
	}

	run.Complete(&models.Report{RunID: "run-x"})
	rec = doJSON(t, h, "GET", "/api/runs/"+run.ID+"/report", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "run-x") {
		t.Errorf("report after completion: status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, "GET", "/api/runs/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing run: status = %d", rec.Code)
	}
}

func TestMigrateContact_UnknownConnection(t *testing.T) {
	_, h := newTestServer()

	rec := doJSON(t, h, "POST", "/api/migrate/contact", `{"connection_id":"nope","contactId":1,"destinationCompanyId":2}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown connection", rec.Code)
	}
}

func TestMigrateContact_Accepted(t *testing.T) {
	s, h := newTestServer()
	conn := &models.Connection{Name: "prod", Scheme: "http", Host: "127.0.0.1", Port: 1,
		Username: "u", Secret: "s", IntegrationCode: "i"}
	s.Connections.Create(conn)

	rec := doJSON(t, h, "POST", "/api/migrate/contact",
		`{"connection_id":"`+conn.ID+`","contactId":1001,"destinationCompanyId":55}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	run := s.Runs.Get(resp["run_id"])
	if run == nil || run.Workflow != "contact-move" {
		t.Errorf("run = %+v", run)
	}
}
