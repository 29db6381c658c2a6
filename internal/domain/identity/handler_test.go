package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medbook/medbook/internal/platform/auth"
)

func newTestHandler() (*Handler, *testEnv) {
	env := newTestEnv()
	return NewHandler(env.svc), env
}

func jsonRequest(method, target, body string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req, httptest.NewRecorder()
}

func TestHandler_Register(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/auth/register",
		`{"email":"jane@example.com","password":"secret123","firstName":"Jane","lastName":"Doe","role":"patient"}`)
	c := e.NewContext(req, rec)

	if err := h.Register(c); err != nil {
		t.Fatalf("Register handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp struct {
		Status       string `json:"status"`
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int64  `json:"expiresIn"`
		Data         struct {
			User map[string]interface{} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("expected status success, got %q", resp.Status)
	}
	if resp.Token == "" || resp.RefreshToken == "" || resp.ExpiresIn == 0 {
		t.Error("expected a complete token envelope")
	}
	if resp.Data.User["email"] != "jane@example.com" {
		t.Errorf("expected the user in the envelope, got %v", resp.Data.User)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response must not carry password material")
	}
}

func TestHandler_Register_MissingFields(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/auth/register", `{"email":"jane@example.com"}`)
	c := e.NewContext(req, rec)

	err := h.Register(c)
	assertAppError(t, err, 400, "Please provide email, password, first name and last name")
}

func TestHandler_Login_MissingCredentials(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"jane@example.com"}`)
	c := e.NewContext(req, rec)

	err := h.Login(c)
	assertAppError(t, err, 400, "Please provide email and password")
}

func TestHandler_Refresh_MissingToken(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/auth/refresh", `{}`)
	c := e.NewContext(req, rec)

	err := h.Refresh(c)
	assertAppError(t, err, 400, "Refresh token is required")
}

func TestHandler_GoogleRedirect(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req, rec := jsonRequest(http.MethodGet, "/api/auth/google", "")
	c := e.NewContext(req, rec)

	if err := h.GoogleRedirect(c); err != nil {
		t.Fatalf("GoogleRedirect handler error: %v", err)
	}
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	loc := rec.Header().Get(echo.HeaderLocation)
	if !strings.Contains(loc, "accounts.google.com") || !strings.Contains(loc, "state=") {
		t.Errorf("unexpected redirect target %q", loc)
	}
}

func TestHandler_GoogleCallback_MissingParams(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req, rec := jsonRequest(http.MethodGet, "/api/auth/google/callback?code=abc", "")
	c := e.NewContext(req, rec)

	err := h.GoogleCallback(c)
	assertAppError(t, err, 401, "Authentication failed")
}

func TestHandler_Me(t *testing.T) {
	h, env := newTestHandler()
	doc := env.seedDoctor(t, "Greg", "House")

	e := echo.New()
	req, rec := jsonRequest(http.MethodGet, "/api/users/me", "")
	c := e.NewContext(req, rec)
	c.Set(auth.UserIDKey, doc.ID.String())

	if err := h.Me(c); err != nil {
		t.Fatalf("Me handler error: %v", err)
	}
	var resp struct {
		Status string `json:"status"`
		Data   struct {
			User map[string]interface{} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "success" || resp.Data.User["id"] != doc.ID.String() {
		t.Errorf("unexpected response %s", rec.Body.String())
	}
}

func TestHandler_ListDoctors(t *testing.T) {
	h, env := newTestHandler()
	env.seedDoctor(t, "Alice", "Adams")
	env.seedDoctor(t, "Bob", "Brown")

	e := echo.New()
	req, rec := jsonRequest(http.MethodGet, "/api/users/doctors?limit=1", "")
	c := e.NewContext(req, rec)

	if err := h.ListDoctors(c); err != nil {
		t.Fatalf("ListDoctors handler error: %v", err)
	}
	var resp struct {
		Status      string            `json:"status"`
		Data        []json.RawMessage `json:"data"`
		Total       int               `json:"total"`
		CurrentPage int               `json:"currentPage"`
		TotalPages  int               `json:"totalPages"`
		HasMore     bool              `json:"hasMore"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "success" || resp.Total != 2 || len(resp.Data) != 1 {
		t.Errorf("unexpected page %s", rec.Body.String())
	}
	if resp.TotalPages != 2 || !resp.HasMore {
		t.Errorf("expected a second page, got %s", rec.Body.String())
	}
}

func TestHandler_ListDoctors_BadFilters(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()

	req, rec := jsonRequest(http.MethodGet, "/api/users/doctors?categoryId=not-a-uuid", "")
	err := h.ListDoctors(e.NewContext(req, rec))
	assertAppError(t, err, 400, "Invalid category id")

	req, rec = jsonRequest(http.MethodGet, "/api/users/doctors?date=14-03-2026", "")
	err = h.ListDoctors(e.NewContext(req, rec))
	assertAppError(t, err, 400, "Invalid date, expected YYYY-MM-DD")
}

func TestHandler_ListAvailableDoctors_DefaultsToToday(t *testing.T) {
	h, env := newTestHandler()
	free := env.seedDoctor(t, "Alice", "Adams")
	busy := env.seedDoctor(t, "Bob", "Brown")
	env.busy.busy[busy.ID] = true

	e := echo.New()
	req, rec := jsonRequest(http.MethodGet, "/api/users/doctors/available", "")
	c := e.NewContext(req, rec)

	if err := h.ListAvailableDoctors(c); err != nil {
		t.Fatalf("ListAvailableDoctors handler error: %v", err)
	}
	var resp struct {
		Data  []Doctor `json:"data"`
		Total int      `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 || resp.Data[0].ID != free.ID {
		t.Errorf("expected only the free doctor today, got %s", rec.Body.String())
	}
}

func TestHandler_ReplaceSpecialties_InvalidID(t *testing.T) {
	h, env := newTestHandler()
	doc := env.seedDoctor(t, "Greg", "House")

	e := echo.New()
	req, rec := jsonRequest(http.MethodPut, "/api/users/me/specialties", `{"categoryIds":["nope"]}`)
	c := e.NewContext(req, rec)
	c.Set(auth.UserIDKey, doc.ID.String())

	err := h.ReplaceSpecialties(c)
	assertAppError(t, err, 400, "Invalid category id")
}

func TestHandler_Logout(t *testing.T) {
	h, env := newTestHandler()
	reg, err := env.svc.Register(context.Background(), RegisterInput{
		Email: "jane@example.com", Password: "secret123", FirstName: "Jane", LastName: "Doe", Role: "patient",
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/auth/logout", "")
	c := e.NewContext(req, rec)
	c.Set(auth.UserIDKey, reg.User.ID.String())

	if err := h.Logout(c); err != nil {
		t.Fatalf("Logout handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env.repo.users[reg.User.ID].RefreshTokenHash != nil {
		t.Error("expected the stored refresh hash to be cleared")
	}
}
