package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"clinic-portal/models"
	"clinic-portal/services"
	"clinic-portal/services/servicestest"
)

type testServer struct {
	app   *fiber.App
	repo  *servicestest.PrincipalRepository
	creds *services.Credentials
	redis *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := servicestest.NewPrincipalRepository()
	creds, err := services.NewCredentials(repo, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	store, mr := servicestest.NewRedisSessionStore(t)
	sessions := services.NewSessions(store, time.Hour)
	hub := services.NewSessionHub()
	t.Cleanup(hub.Close)

	app := NewApp(Deps{
		Credentials: creds,
		Sessions:    sessions,
		Principals:  repo,
		Hub:         hub,
		AccessLog:   io.Discard,
	})
	return &testServer{app: app, repo: repo, creds: creds, redis: mr}
}

// seedAdmin creates an admin directly, the way cmd/seed does.
func (s *testServer) seedAdmin(t *testing.T, email, employeeID string, level models.AccessLevel, perms *models.AdminPermissions) {
	t.Helper()
	_, err := s.creds.RegisterAdmin(context.Background(), services.RegisterRequest{
		Username:    strings.Split(email, "@")[0],
		Email:       email,
		Password:    "Passw0rd",
		FirstName:   "Ada",
		LastName:    "Admin",
		Phone:       "555-0120",
		EmployeeID:  employeeID,
		Department:  "IT",
		Position:    "Administrator",
		AccessLevel: string(level),
		Permissions: perms,
	})
	if err != nil {
		t.Fatalf("seed admin %s: %v", email, err)
	}
}

// do sends a JSON request, optionally carrying a session id header, and
// decodes the JSON response body.
func (s *testServer) do(t *testing.T, method, path string, body interface{}, sessionID string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("encode body: %v", err)
			}
			reader = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set(services.SessionHeaderName, sessionID)
	}

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}

	var out map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp, out
}

func (s *testServer) register(t *testing.T, path string, body map[string]interface{}) {
	t.Helper()
	resp, out := s.do(t, http.MethodPost, path, body, "")
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("register %s: status %d, body %v", path, resp.StatusCode, out)
	}
}

func (s *testServer) login(t *testing.T, email, password, variant string) string {
	t.Helper()
	resp, out := s.do(t, http.MethodPost, "/api/login", map[string]interface{}{
		"email": email, "password": password, "variant": variant,
	}, "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("login %s: status %d, body %v", email, resp.StatusCode, out)
	}
	id, _ := out["sessionId"].(string)
	if id == "" {
		t.Fatalf("login %s: no sessionId in %v", email, out)
	}
	return id
}

func patientBody() map[string]interface{} {
	return map[string]interface{}{
		"username":  "pat",
		"email":     "pat@example.com",
		"password":  "Passw0rd",
		"firstName": "Pat",
		"lastName":  "Lee",
	}
}

func doctorBody() map[string]interface{} {
	return map[string]interface{}{
		"username":       "drgrey",
		"email":          "grey@example.com",
		"password":       "Passw0rd",
		"firstName":      "Meredith",
		"lastName":       "Grey",
		"phone":          "555-0110",
		"specialization": "Surgery",
		"licenseNumber":  "LIC-42",
		"qualification":  "MD",
		"experience":     12,
		"department":     "General Surgery",
	}
}

func adminBody(email, employeeID string) map[string]interface{} {
	return map[string]interface{}{
		"username":    strings.Split(email, "@")[0],
		"email":       email,
		"password":    "Passw0rd",
		"firstName":   "Ada",
		"lastName":    "Admin",
		"phone":       "555-0120",
		"employeeId":  employeeID,
		"department":  "IT",
		"position":    "Administrator",
	}
}

func TestPatientSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "/api/register", patientBody())

	sessionID := s.login(t, "pat@example.com", "Passw0rd", "patient")

	resp, out := s.do(t, http.MethodGet, "/api/profile", nil, sessionID)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("profile: status %d, body %v", resp.StatusCode, out)
	}
	user, _ := out["user"].(map[string]interface{})
	if user["firstName"] != "Pat" || user["lastName"] != "Lee" || user["role"] != "patient" {
		t.Errorf("profile user = %v", user)
	}
	if _, leaked := user["passwordHash"]; leaked {
		t.Error("profile leaks the password hash")
	}

	resp, out = s.do(t, http.MethodPost, "/api/logout", nil, sessionID)
	if resp.StatusCode != fiber.StatusOK || out["message"] != "Logout successful" {
		t.Fatalf("logout: status %d, body %v", resp.StatusCode, out)
	}

	resp, out = s.do(t, http.MethodGet, "/api/profile", nil, sessionID)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("profile after logout: status %d, body %v", resp.StatusCode, out)
	}
	if out["error"] != "Invalid or expired session" {
		t.Errorf("profile after logout: body %v", out)
	}

	// Logging out again is still a success.
	resp, _ = s.do(t, http.MethodPost, "/api/logout", map[string]interface{}{"sessionId": sessionID}, "")
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("second logout: status %d", resp.StatusCode)
	}
}

func TestLoginFailuresLookAlike(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "/api/register", patientBody())

	unknownResp, unknown := s.do(t, http.MethodPost, "/api/login", map[string]interface{}{
		"email": "ghost@example.com", "password": "Passw0rd", "variant": "patient",
	}, "")
	wrongResp, wrong := s.do(t, http.MethodPost, "/api/login", map[string]interface{}{
		"email": "pat@example.com", "password": "nope", "variant": "patient",
	}, "")

	if unknownResp.StatusCode != fiber.StatusUnauthorized || wrongResp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("statuses = %d, %d, want 401", unknownResp.StatusCode, wrongResp.StatusCode)
	}
	if len(unknown) != len(wrong) || unknown["error"] != wrong["error"] {
		t.Errorf("unknown email body %v differs from wrong password body %v", unknown, wrong)
	}
}

func TestLoginValidation(t *testing.T) {
	s := newTestServer(t)

	resp, out := s.do(t, http.MethodPost, "/api/login", map[string]interface{}{"email": "pat@example.com"}, "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("missing password: status %d, body %v", resp.StatusCode, out)
	}

	s.register(t, "/api/register", patientBody())
	_, wrong := s.do(t, http.MethodPost, "/api/login", map[string]interface{}{
		"email": "pat@example.com", "password": "nope", "variant": "patient",
	}, "")
	resp, out = s.do(t, http.MethodPost, "/api/login", map[string]interface{}{
		"email": "pat@example.com", "password": "Passw0rd", "variant": "nurse",
	}, "")
	if resp.StatusCode != fiber.StatusUnauthorized || out["error"] != wrong["error"] || len(out) != len(wrong) {
		t.Errorf("unknown variant: status %d, body %v, want the wrong-password body %v", resp.StatusCode, out, wrong)
	}

	resp, _ = s.do(t, http.MethodPost, "/api/login", "{not json", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("malformed body: status %d", resp.StatusCode)
	}
}

func TestRegisterErrors(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "/api/register", patientBody())

	resp, out := s.do(t, http.MethodPost, "/api/register", patientBody(), "")
	if resp.StatusCode != fiber.StatusBadRequest || out["error"] != "Email already registered" {
		t.Errorf("duplicate: status %d, body %v", resp.StatusCode, out)
	}

	bad := patientBody()
	bad["email"] = "not-an-email"
	bad["username"] = "other"
	resp, out = s.do(t, http.MethodPost, "/api/register", bad, "")
	if resp.StatusCode != fiber.StatusBadRequest || out["field"] != "email" {
		t.Errorf("malformed email: status %d, body %v", resp.StatusCode, out)
	}

	doc := doctorBody()
	doc["experience"] = "twelve"
	resp, out = s.do(t, http.MethodPost, "/api/register/doctor", doc, "")
	if resp.StatusCode != fiber.StatusBadRequest || out["field"] != "experience" {
		t.Errorf("non-numeric experience: status %d, body %v", resp.StatusCode, out)
	}

	doc = doctorBody()
	delete(doc, "experience")
	resp, out = s.do(t, http.MethodPost, "/api/register/doctor", doc, "")
	if resp.StatusCode != fiber.StatusBadRequest || out["field"] != "experience" {
		t.Errorf("missing experience: status %d, body %v", resp.StatusCode, out)
	}

	resp, _ = s.do(t, http.MethodPost, "/api/register/nurse", patientBody(), "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("unknown variant: status %d", resp.StatusCode)
	}
}

func TestRoleGates(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "/api/register/doctor", doctorBody())
	doctorSession := s.login(t, "grey@example.com", "Passw0rd", "doctor")

	resp, out := s.do(t, http.MethodGet, "/api/admin/principals/patient", nil, doctorSession)
	if resp.StatusCode != fiber.StatusForbidden || out["error"] != "Insufficient permissions" {
		t.Errorf("doctor on admin route: status %d, body %v", resp.StatusCode, out)
	}

	resp, _ = s.do(t, http.MethodGet, "/api/patient/profile", nil, doctorSession)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("doctor on patient route: status %d", resp.StatusCode)
	}

	resp, out = s.do(t, http.MethodGet, "/api/doctor/profile", nil, doctorSession)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("doctor on doctor route: status %d, body %v", resp.StatusCode, out)
	}
	profile, _ := out["profile"].(map[string]interface{})
	doctor, _ := profile["doctor"].(map[string]interface{})
	if doctor["licenseNumber"] != "LIC-42" {
		t.Errorf("doctor profile = %v", profile)
	}

	resp, out = s.do(t, http.MethodGet, "/api/admin/principals/patient", nil, "")
	if resp.StatusCode != fiber.StatusUnauthorized || out["error"] != "No session provided" {
		t.Errorf("anonymous on admin route: status %d, body %v", resp.StatusCode, out)
	}
}

func TestRoleSnapshotSurvivesPromotion(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "/api/register", patientBody())
	s.seedAdmin(t, "root@example.com", "E-1", models.AccessSuperAdmin, nil)
	sessionID := s.login(t, "pat@example.com", "Passw0rd", "")
	adminSession := s.login(t, "root@example.com", "Passw0rd", "admin")

	p, err := s.repo.FindByEmail(context.Background(), models.VariantPatient, "pat@example.com")
	if err != nil {
		t.Fatal(err)
	}
	path := "/api/admin/principals/patient/" + p.ID.Hex() + "/role"

	resp, out := s.do(t, http.MethodPut, path, map[string]interface{}{"role": "superuser"}, adminSession)
	if resp.StatusCode != fiber.StatusBadRequest || out["field"] != "role" {
		t.Errorf("unknown role: status %d, body %v", resp.StatusCode, out)
	}

	resp, out = s.do(t, http.MethodPut, path, map[string]interface{}{"role": "admin"}, adminSession)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("promote: status %d, body %v", resp.StatusCode, out)
	}

	resp, _ = s.do(t, http.MethodGet, "/api/admin/profile", nil, sessionID)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("promoted patient on old session: status %d, want 403", resp.StatusCode)
	}

	// A fresh login picks up the new role.
	fresh := s.login(t, "pat@example.com", "Passw0rd", "patient")
	_, out = s.do(t, http.MethodGet, "/api/session/check", nil, fresh)
	if out["role"] != "admin" {
		t.Errorf("role after re-login = %v, want admin", out["role"])
	}
}

func TestCookieFallback(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "/api/register", patientBody())

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"email":"pat@example.com","password":"Passw0rd","userType":"patient"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == services.SessionCookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" || !cookie.HttpOnly {
		t.Fatalf("session cookie = %+v", cookie)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	resp, err = s.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("profile via cookie: status %d", resp.StatusCode)
	}
}

func TestSessionCheckAndList(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "/api/register", patientBody())
	first := s.login(t, "pat@example.com", "Passw0rd", "patient")
	second := s.login(t, "pat@example.com", "Passw0rd", "patient")

	_, out := s.do(t, http.MethodGet, "/api/session/check", nil, "")
	if out["authenticated"] != false {
		t.Errorf("anonymous check = %v", out)
	}
	_, out = s.do(t, http.MethodGet, "/api/session/check", nil, first)
	if out["authenticated"] != true || out["role"] != "patient" {
		t.Errorf("check = %v", out)
	}

	resp, out := s.do(t, http.MethodGet, "/api/sessions", nil, second)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("sessions: status %d", resp.StatusCode)
	}
	list, _ := out["sessions"].([]interface{})
	if len(list) != 2 {
		t.Fatalf("sessions = %v, want 2", list)
	}
	current := 0
	for _, item := range list {
		if m, _ := item.(map[string]interface{}); m["current"] == true {
			current++
			if m["id"] != second {
				t.Errorf("current session = %v, want %s", m["id"], second)
			}
		}
	}
	if current != 1 {
		t.Errorf("%d sessions flagged current, want 1", current)
	}

	resp, out = s.do(t, http.MethodPost, "/api/logout/all", nil, second)
	if resp.StatusCode != fiber.StatusOK || out["revoked"] != float64(2) {
		t.Errorf("logout all: status %d, body %v", resp.StatusCode, out)
	}
	if resp, _ := s.do(t, http.MethodGet, "/api/profile", nil, first); resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("first session after logout all: status %d", resp.StatusCode)
	}
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "/api/register", patientBody())
	sessionID := s.login(t, "pat@example.com", "Passw0rd", "patient")

	resp, out := s.do(t, http.MethodPut, "/api/profile/password", map[string]interface{}{
		"currentPassword": "wrong", "newPassword": "N3wPassword",
	}, sessionID)
	if resp.StatusCode != fiber.StatusBadRequest || out["field"] != "currentPassword" {
		t.Errorf("wrong current: status %d, body %v", resp.StatusCode, out)
	}

	resp, _ = s.do(t, http.MethodPut, "/api/profile/password", map[string]interface{}{
		"currentPassword": "Passw0rd", "newPassword": "N3wPassword",
	}, sessionID)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("change: status %d", resp.StatusCode)
	}
	s.login(t, "pat@example.com", "N3wPassword", "patient")
}

func TestAdminDisablesAccount(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "/api/register", patientBody())
	s.seedAdmin(t, "root@example.com", "E-1", models.AccessSuperAdmin, nil)

	patientSession := s.login(t, "pat@example.com", "Passw0rd", "patient")
	adminSession := s.login(t, "root@example.com", "Passw0rd", "admin")

	resp, out := s.do(t, http.MethodGet, "/api/admin/principals/patient", nil, adminSession)
	if resp.StatusCode != fiber.StatusOK || out["count"] != float64(1) {
		t.Fatalf("list patients: status %d, body %v", resp.StatusCode, out)
	}

	p, err := s.repo.FindByEmail(context.Background(), models.VariantPatient, "pat@example.com")
	if err != nil {
		t.Fatal(err)
	}
	path := "/api/admin/principals/patient/" + p.ID.Hex() + "/active"

	resp, out = s.do(t, http.MethodPut, path, map[string]interface{}{}, adminSession)
	if resp.StatusCode != fiber.StatusBadRequest || out["field"] != "isActive" {
		t.Errorf("missing isActive: status %d, body %v", resp.StatusCode, out)
	}

	resp, out = s.do(t, http.MethodPut, path, map[string]interface{}{"isActive": false}, adminSession)
	if resp.StatusCode != fiber.StatusOK || out["revoked"] != float64(1) {
		t.Fatalf("disable: status %d, body %v", resp.StatusCode, out)
	}

	if resp, _ := s.do(t, http.MethodGet, "/api/profile", nil, patientSession); resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("disabled patient session: status %d", resp.StatusCode)
	}
	resp, _ = s.do(t, http.MethodPost, "/api/login", map[string]interface{}{
		"email": "pat@example.com", "password": "Passw0rd",
	}, "")
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("disabled patient login: status %d", resp.StatusCode)
	}

	admin, err := s.repo.FindByEmail(context.Background(), models.VariantAdmin, "root@example.com")
	if err != nil {
		t.Fatal(err)
	}
	resp, _ = s.do(t, http.MethodPut, "/api/admin/principals/admin/"+admin.ID.Hex()+"/active",
		map[string]interface{}{"isActive": false}, adminSession)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("self disable: status %d", resp.StatusCode)
	}

	resp, _ = s.do(t, http.MethodDelete, "/api/admin/principals/patient/"+"000000000000000000000000"+"/sessions", nil, adminSession)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("revoke for unknown account: status %d", resp.StatusCode)
	}
}

func TestSessionCheckStoreFailure(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "/api/register", patientBody())
	sessionID := s.login(t, "pat@example.com", "Passw0rd", "patient")

	s.redis.Close()

	resp, out := s.do(t, http.MethodGet, "/api/session/check", nil, sessionID)
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Errorf("check with the store down: status %d, body %v, want 500", resp.StatusCode, out)
	}
	if out["authenticated"] != nil {
		t.Errorf("check with the store down answered %v", out)
	}

	// Without a token the store is never consulted.
	resp, out = s.do(t, http.MethodGet, "/api/session/check", nil, "")
	if resp.StatusCode != fiber.StatusOK || out["authenticated"] != false {
		t.Errorf("anonymous check with the store down: status %d, body %v", resp.StatusCode, out)
	}
}

func TestSelfRegisteredAdminIsNotElevated(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "/api/register", patientBody())

	body := adminBody("mallory@example.com", "E-9")
	body["accessLevel"] = "super_admin"
	body["permissions"] = map[string]interface{}{"manageUsers": true, "manageSettings": true}
	resp, out := s.do(t, http.MethodPost, "/api/register/admin", body, "")
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("register: status %d, body %v", resp.StatusCode, out)
	}
	if user, _ := out["user"].(map[string]interface{}); user["accessLevel"] != "admin" {
		t.Errorf("registered user = %v, want accessLevel admin", user)
	}

	stored, err := s.repo.FindByEmail(context.Background(), models.VariantAdmin, "mallory@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Admin.AccessLevel != models.AccessAdmin {
		t.Errorf("stored AccessLevel = %q, want admin", stored.Admin.AccessLevel)
	}
	if granted := stored.Admin.Permissions.Granted(); len(granted) != 0 {
		t.Errorf("stored permissions = %v, want none", granted)
	}

	sessionID := s.login(t, "mallory@example.com", "Passw0rd", "admin")
	if resp, _ := s.do(t, http.MethodGet, "/api/admin/profile", nil, sessionID); resp.StatusCode != fiber.StatusOK {
		t.Errorf("admin profile: status %d", resp.StatusCode)
	}
	resp, _ = s.do(t, http.MethodGet, "/api/admin/principals/patient", nil, sessionID)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("list patients: status %d, want 403", resp.StatusCode)
	}
	resp, _ = s.do(t, http.MethodPost, "/api/admin/admins", adminBody("eve@example.com", "E-10"), sessionID)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("create admin: status %d, want 403", resp.StatusCode)
	}
}

func TestCreateAdmin(t *testing.T) {
	s := newTestServer(t)
	s.seedAdmin(t, "root@example.com", "E-1", models.AccessSuperAdmin, nil)
	s.seedAdmin(t, "lead@example.com", "E-2", models.AccessManager, &models.AdminPermissions{ManageUsers: true, ViewReports: true})
	rootSession := s.login(t, "root@example.com", "Passw0rd", "admin")
	leadSession := s.login(t, "lead@example.com", "Passw0rd", "admin")

	// The defaults include flags the manager does not hold.
	resp, out := s.do(t, http.MethodPost, "/api/admin/admins", adminBody("alpha@example.com", "E-3"), leadSession)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("manager granting defaults: status %d, body %v", resp.StatusCode, out)
	}

	body := adminBody("bravo@example.com", "E-4")
	body["accessLevel"] = "super_admin"
	body["permissions"] = map[string]interface{}{}
	resp, out = s.do(t, http.MethodPost, "/api/admin/admins", body, leadSession)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("manager granting super_admin: status %d, body %v", resp.StatusCode, out)
	}

	body = adminBody("carol@example.com", "E-5")
	body["accessLevel"] = "manager"
	body["permissions"] = map[string]interface{}{"viewReports": true}
	resp, out = s.do(t, http.MethodPost, "/api/admin/admins", body, leadSession)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("manager granting a held flag: status %d, body %v", resp.StatusCode, out)
	}
	created, err := s.repo.FindByEmail(context.Background(), models.VariantAdmin, "carol@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if created.Admin.AccessLevel != models.AccessManager || !created.HasPermission(models.PermViewReports) || created.HasPermission(models.PermManageUsers) {
		t.Errorf("created admin = %+v", created.Admin)
	}

	body = adminBody("delta@example.com", "E-6")
	body["accessLevel"] = "super_admin"
	resp, out = s.do(t, http.MethodPost, "/api/admin/admins", body, rootSession)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("super admin granting super_admin: status %d, body %v", resp.StatusCode, out)
	}
	if user, _ := out["user"].(map[string]interface{}); user["accessLevel"] != "super_admin" {
		t.Errorf("created user = %v", user)
	}
	s.login(t, "delta@example.com", "Passw0rd", "admin")

	resp, out = s.do(t, http.MethodPost, "/api/admin/admins", adminBody("delta@example.com", "E-7"), rootSession)
	if resp.StatusCode != fiber.StatusBadRequest || out["field"] != "email" {
		t.Errorf("duplicate email: status %d, body %v", resp.StatusCode, out)
	}
}

func TestPublicRoutes(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "/api/register/doctor", doctorBody())

	resp, out := s.do(t, http.MethodGet, "/api/doctors", nil, "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("doctors: status %d", resp.StatusCode)
	}
	if list, _ := out["doctors"].([]interface{}); len(list) != 1 {
		t.Errorf("doctors = %v", out["doctors"])
	}

	for _, path := range []string{"/health", "/api/health"} {
		resp, out = s.do(t, http.MethodGet, path, nil, "")
		if resp.StatusCode != fiber.StatusOK || out["status"] != "ok" {
			t.Errorf("%s: status %d, body %v", path, resp.StatusCode, out)
		}
	}

	resp, _ = s.do(t, http.MethodGet, "/api/nope", nil, "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("unknown route: status %d", resp.StatusCode)
	}
}
