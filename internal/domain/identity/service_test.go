package identity

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/medbook/medbook/internal/platform/apperror"
	"github.com/medbook/medbook/internal/platform/auth"
)

// -- Mocks --

type mockRepo struct {
	users         map[uuid.UUID]*User
	specialties   map[uuid.UUID][]uuid.UUID
	categoryNames map[uuid.UUID]string
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		users:         make(map[uuid.UUID]*User),
		specialties:   make(map[uuid.UUID][]uuid.UUID),
		categoryNames: make(map[uuid.UUID]string),
	}
}

func (m *mockRepo) Create(_ context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = time.Now()
	m.users[u.ID] = u
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) GetByGoogleID(_ context.Context, googleID string) (*User, error) {
	for _, u := range m.users {
		if u.GoogleID != nil && *u.GoogleID == googleID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) LinkGoogleID(_ context.Context, id uuid.UUID, googleID string) error {
	u, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.GoogleID = &googleID
	return nil
}

func (m *mockRepo) UpdateRefreshTokenHash(_ context.Context, id uuid.UUID, hash *string) error {
	u, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.RefreshTokenHash = hash
	return nil
}

func (m *mockRepo) ListDoctors(_ context.Context, filter DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	var doctors []*Doctor
	for _, u := range m.users {
		if u.Role != RoleDoctor {
			continue
		}
		if filter.CategoryID != nil && !m.hasSpecialty(u.ID, *filter.CategoryID) {
			continue
		}
		if term := strings.ToLower(filter.SearchTerm); term != "" {
			if !strings.Contains(strings.ToLower(u.FirstName), term) &&
				!strings.Contains(strings.ToLower(u.LastName), term) {
				continue
			}
		}
		doctors = append(doctors, &Doctor{
			ID:          u.ID,
			FirstName:   u.FirstName,
			LastName:    u.LastName,
			Email:       u.Email,
			Specialties: m.specialtiesOf(u.ID),
		})
	}
	sort.Slice(doctors, func(i, j int) bool {
		if doctors[i].LastName != doctors[j].LastName {
			return doctors[i].LastName < doctors[j].LastName
		}
		return doctors[i].FirstName < doctors[j].FirstName
	})
	total := len(doctors)
	if offset >= len(doctors) {
		return []*Doctor{}, total, nil
	}
	doctors = doctors[offset:]
	if len(doctors) > limit {
		doctors = doctors[:limit]
	}
	return doctors, total, nil
}

func (m *mockRepo) hasSpecialty(doctorID, categoryID uuid.UUID) bool {
	for _, id := range m.specialties[doctorID] {
		if id == categoryID {
			return true
		}
	}
	return false
}

func (m *mockRepo) specialtiesOf(doctorID uuid.UUID) []Specialty {
	out := []Specialty{}
	for _, id := range m.specialties[doctorID] {
		out = append(out, Specialty{ID: id, Name: m.categoryNames[id]})
	}
	return out
}

func (m *mockRepo) SpecialtiesByDoctor(_ context.Context, doctorID uuid.UUID) ([]Specialty, error) {
	return m.specialtiesOf(doctorID), nil
}

func (m *mockRepo) ReplaceSpecialties(_ context.Context, doctorID uuid.UUID, categoryIDs []uuid.UUID) error {
	m.specialties[doctorID] = categoryIDs
	return nil
}

type mockGoogle struct {
	profile *auth.GoogleProfile
	err     error
}

func (m *mockGoogle) AuthCodeURL(state string) string {
	return "https://accounts.google.com/o/oauth2/v2/auth?state=" + state
}

func (m *mockGoogle) Exchange(_ context.Context, _ string) (*auth.GoogleProfile, error) {
	return m.profile, m.err
}

type mockAvailability struct {
	busy map[uuid.UUID]bool
}

func (m *mockAvailability) BusyDoctorIDs(_ context.Context, doctorIDs []uuid.UUID, _ time.Time) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool)
	for _, id := range doctorIDs {
		if m.busy[id] {
			out[id] = true
		}
	}
	return out, nil
}

type mockCategories struct {
	known map[uuid.UUID]bool
}

func (m *mockCategories) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.known[id], nil
}

type testEnv struct {
	svc        *Service
	repo       *mockRepo
	google     *mockGoogle
	busy       *mockAvailability
	categories *mockCategories
	tokens     *auth.TokenManager
}

func newTestEnv() *testEnv {
	repo := newMockRepo()
	google := &mockGoogle{}
	busy := &mockAvailability{busy: make(map[uuid.UUID]bool)}
	categories := &mockCategories{known: make(map[uuid.UUID]bool)}
	tokens := auth.NewTokenManager("test-secret", 24*time.Hour, 7*24*time.Hour)
	return &testEnv{
		svc:        NewService(repo, tokens, google, busy, categories),
		repo:       repo,
		google:     google,
		busy:       busy,
		categories: categories,
		tokens:     tokens,
	}
}

func assertAppError(t *testing.T, err error, code int, message string) {
	t.Helper()
	var ae *apperror.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected apperror, got %v", err)
	}
	if ae.Code != code {
		t.Errorf("expected status %d, got %d", code, ae.Code)
	}
	if ae.Message != message {
		t.Errorf("expected message %q, got %q", message, ae.Message)
	}
}

func (e *testEnv) seedDoctor(t *testing.T, firstName, lastName string) *User {
	t.Helper()
	res, err := e.svc.Register(context.Background(), RegisterInput{
		Email:     firstName + "." + lastName + "@example.com",
		Password:  "secret123",
		FirstName: firstName,
		LastName:  lastName,
		Role:      "doctor",
	})
	if err != nil {
		t.Fatalf("seedDoctor: %v", err)
	}
	return res.User
}

// -- Tests --

func TestRegister(t *testing.T) {
	env := newTestEnv()

	res, err := env.svc.Register(context.Background(), RegisterInput{
		Email:     "jane@example.com",
		Password:  "secret123",
		FirstName: "Jane",
		LastName:  "Doe",
		Role:      "patient",
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if res.Token == "" || res.RefreshToken == "" {
		t.Error("expected a token pair")
	}
	if res.ExpiresIn != int64((24 * time.Hour).Seconds()) {
		t.Errorf("expected expiresIn %d, got %d", int64((24*time.Hour).Seconds()), res.ExpiresIn)
	}
	if res.User.Role != RolePatient {
		t.Errorf("expected role patient, got %s", res.User.Role)
	}
	if res.User.PasswordHash == nil || *res.User.PasswordHash == "secret123" {
		t.Error("password must be stored hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*res.User.PasswordHash), []byte("secret123")); err != nil {
		t.Errorf("stored hash does not match the password: %v", err)
	}

	stored := env.repo.users[res.User.ID]
	if stored.RefreshTokenHash == nil || *stored.RefreshTokenHash != auth.HashToken(res.RefreshToken) {
		t.Error("expected the refresh token hash to be stored")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv()
	in := RegisterInput{Email: "jane@example.com", Password: "secret123", FirstName: "Jane", LastName: "Doe", Role: "patient"}

	if _, err := env.svc.Register(context.Background(), in); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	_, err := env.svc.Register(context.Background(), in)
	assertAppError(t, err, 400, "Email already exists")
}

func TestRegister_InvalidRole(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.Register(context.Background(), RegisterInput{
		Email: "x@example.com", Password: "secret123", FirstName: "X", LastName: "Y", Role: "admin",
	})
	assertAppError(t, err, 400, "Role must be either patient or doctor")
}

func TestLogin(t *testing.T) {
	env := newTestEnv()
	if _, err := env.svc.Register(context.Background(), RegisterInput{
		Email: "jane@example.com", Password: "secret123", FirstName: "Jane", LastName: "Doe", Role: "patient",
	}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	res, err := env.svc.Login(context.Background(), "jane@example.com", "secret123")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if res.Token == "" {
		t.Error("expected an access token")
	}
}

func TestLogin_FailuresAreUniform(t *testing.T) {
	env := newTestEnv()
	if _, err := env.svc.Register(context.Background(), RegisterInput{
		Email: "jane@example.com", Password: "secret123", FirstName: "Jane", LastName: "Doe", Role: "patient",
	}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	// OAuth-only account, no password.
	sub := "google-sub-1"
	oauthUser := &User{Email: "oauth@example.com", FirstName: "O", LastName: "Auth", Role: RolePatient, GoogleID: &sub}
	if err := env.repo.Create(context.Background(), oauthUser); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		email string
		pass  string
	}{
		{"unknown email", "nobody@example.com", "secret123"},
		{"wrong password", "jane@example.com", "wrong"},
		{"oauth only account", "oauth@example.com", "secret123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Login(context.Background(), tc.email, tc.pass)
			assertAppError(t, err, 401, "Incorrect email or password")
		})
	}
}

func TestRefresh_Rotation(t *testing.T) {
	env := newTestEnv()
	reg, err := env.svc.Register(context.Background(), RegisterInput{
		Email: "jane@example.com", Password: "secret123", FirstName: "Jane", LastName: "Doe", Role: "patient",
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	res, err := env.svc.Refresh(context.Background(), reg.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if res.RefreshToken == reg.RefreshToken {
		t.Error("expected a rotated refresh token")
	}

	// The previous token no longer matches the stored hash.
	_, err = env.svc.Refresh(context.Background(), reg.RefreshToken)
	assertAppError(t, err, 401, "Invalid refresh token")
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	env := newTestEnv()
	reg, err := env.svc.Register(context.Background(), RegisterInput{
		Email: "jane@example.com", Password: "secret123", FirstName: "Jane", LastName: "Doe", Role: "patient",
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	_, err = env.svc.Refresh(context.Background(), reg.Token)
	assertAppError(t, err, 401, "Invalid refresh token")
}

func TestLogout_RevokesRefresh(t *testing.T) {
	env := newTestEnv()
	reg, err := env.svc.Register(context.Background(), RegisterInput{
		Email: "jane@example.com", Password: "secret123", FirstName: "Jane", LastName: "Doe", Role: "patient",
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if err := env.svc.Logout(context.Background(), reg.User.ID); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	_, err = env.svc.Refresh(context.Background(), reg.RefreshToken)
	assertAppError(t, err, 401, "Invalid refresh token")
}

func TestGoogleLogin_CreatesPatient(t *testing.T) {
	env := newTestEnv()
	env.google.profile = &auth.GoogleProfile{
		Subject: "google-sub-1", Email: "jane@example.com", GivenName: "Jane", FamilyName: "Doe",
	}
	state, err := env.tokens.IssueState()
	if err != nil {
		t.Fatal(err)
	}

	res, err := env.svc.GoogleLogin(context.Background(), "code", state)
	if err != nil {
		t.Fatalf("GoogleLogin() error: %v", err)
	}
	if res.User.Role != RolePatient {
		t.Errorf("expected default role patient, got %s", res.User.Role)
	}
	if res.User.GoogleID == nil || *res.User.GoogleID != "google-sub-1" {
		t.Error("expected the google id to be stored")
	}

	// The same subject logs back into the same account.
	state2, _ := env.tokens.IssueState()
	res2, err := env.svc.GoogleLogin(context.Background(), "code", state2)
	if err != nil {
		t.Fatalf("GoogleLogin() error: %v", err)
	}
	if res2.User.ID != res.User.ID {
		t.Error("expected the existing account to be reused")
	}
}

func TestGoogleLogin_LinksExistingEmail(t *testing.T) {
	env := newTestEnv()
	reg, err := env.svc.Register(context.Background(), RegisterInput{
		Email: "jane@example.com", Password: "secret123", FirstName: "Jane", LastName: "Doe", Role: "doctor",
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	env.google.profile = &auth.GoogleProfile{Subject: "google-sub-1", Email: "jane@example.com"}
	state, _ := env.tokens.IssueState()

	res, err := env.svc.GoogleLogin(context.Background(), "code", state)
	if err != nil {
		t.Fatalf("GoogleLogin() error: %v", err)
	}
	if res.User.ID != reg.User.ID {
		t.Error("expected the password account to be linked, not duplicated")
	}
	if res.User.Role != RoleDoctor {
		t.Errorf("linking must not change the role, got %s", res.User.Role)
	}
}

func TestGoogleLogin_Failures(t *testing.T) {
	env := newTestEnv()
	env.google.profile = &auth.GoogleProfile{Subject: "s", Email: "e@example.com"}

	_, err := env.svc.GoogleLogin(context.Background(), "code", "bogus-state")
	assertAppError(t, err, 401, "Authentication failed")

	env.google.profile = nil
	env.google.err = errors.New("exchange refused")
	state, _ := env.tokens.IssueState()
	_, err = env.svc.GoogleLogin(context.Background(), "code", state)
	assertAppError(t, err, 401, "Authentication failed")
}

func TestMe(t *testing.T) {
	env := newTestEnv()
	doc := env.seedDoctor(t, "Greg", "House")
	catID := uuid.New()
	env.repo.categoryNames[catID] = "Cardiology"
	env.repo.specialties[doc.ID] = []uuid.UUID{catID}

	user, err := env.svc.Me(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Me() error: %v", err)
	}
	if len(user.Specialties) != 1 || user.Specialties[0].Name != "Cardiology" {
		t.Errorf("expected the doctor's specialties, got %+v", user.Specialties)
	}

	_, err = env.svc.Me(context.Background(), uuid.New())
	assertAppError(t, err, 404, "User not found")
}

func TestListDoctors_AvailabilityFilter(t *testing.T) {
	env := newTestEnv()
	free := env.seedDoctor(t, "Alice", "Adams")
	busy := env.seedDoctor(t, "Bob", "Brown")
	env.busy.busy[busy.ID] = true

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
	doctors, total, err := env.svc.ListDoctors(context.Background(), DoctorQuery{Date: &day}, 10, 0)
	if err != nil {
		t.Fatalf("ListDoctors() error: %v", err)
	}
	if len(doctors) != 1 || doctors[0].ID != free.ID {
		t.Fatalf("expected only the free doctor, got %d", len(doctors))
	}
	if total != 1 {
		t.Errorf("expected the filtered page count as total, got %d", total)
	}

	// Without a date the full directory total is reported.
	doctors, total, err = env.svc.ListDoctors(context.Background(), DoctorQuery{}, 10, 0)
	if err != nil {
		t.Fatalf("ListDoctors() error: %v", err)
	}
	if len(doctors) != 2 || total != 2 {
		t.Errorf("expected 2 doctors with total 2, got %d/%d", len(doctors), total)
	}
}

func TestListDoctors_OrderAndEmpty(t *testing.T) {
	env := newTestEnv()
	env.seedDoctor(t, "Bob", "Brown")
	env.seedDoctor(t, "Alice", "Adams")

	doctors, _, err := env.svc.ListDoctors(context.Background(), DoctorQuery{}, 10, 0)
	if err != nil {
		t.Fatalf("ListDoctors() error: %v", err)
	}
	if doctors[0].LastName != "Adams" {
		t.Errorf("expected last name order, got %s first", doctors[0].LastName)
	}

	day := time.Now()
	doctors, total, err := env.svc.ListDoctors(context.Background(), DoctorQuery{SearchTerm: "zzz", Date: &day}, 10, 0)
	if err != nil {
		t.Fatalf("ListDoctors() error: %v", err)
	}
	if doctors == nil || len(doctors) != 0 || total != 0 {
		t.Errorf("expected an empty non-nil page, got %v total %d", doctors, total)
	}
}

func TestListDoctors_DateFilterPastLastPage(t *testing.T) {
	env := newTestEnv()
	env.seedDoctor(t, "Alice", "Adams")
	env.seedDoctor(t, "Bob", "Brown")

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
	doctors, total, err := env.svc.ListDoctors(context.Background(), DoctorQuery{Date: &day}, 10, 20)
	if err != nil {
		t.Fatalf("ListDoctors() error: %v", err)
	}
	if doctors == nil || len(doctors) != 0 {
		t.Fatalf("expected an empty non-nil page, got %v", doctors)
	}
	// The date filter keeps the total page-local even when the page itself
	// is empty; the directory count would make totalPages and hasMore wrong.
	if total != 0 {
		t.Errorf("expected total 0 for an empty filtered page, got %d", total)
	}
}

func TestReplaceSpecialties(t *testing.T) {
	env := newTestEnv()
	doc := env.seedDoctor(t, "Greg", "House")
	catID := uuid.New()
	env.categories.known[catID] = true
	env.repo.categoryNames[catID] = "Cardiology"

	specialties, err := env.svc.ReplaceSpecialties(context.Background(), doc.ID, []uuid.UUID{catID})
	if err != nil {
		t.Fatalf("ReplaceSpecialties() error: %v", err)
	}
	if len(specialties) != 1 || specialties[0].ID != catID {
		t.Errorf("expected the new specialty set, got %+v", specialties)
	}
}

func TestReplaceSpecialties_UnknownCategory(t *testing.T) {
	env := newTestEnv()
	doc := env.seedDoctor(t, "Greg", "House")
	known := uuid.New()
	env.categories.known[known] = true

	_, err := env.svc.ReplaceSpecialties(context.Background(), doc.ID, []uuid.UUID{known, uuid.New()})
	assertAppError(t, err, 404, "Category not found")

	if len(env.repo.specialties[doc.ID]) != 0 {
		t.Error("a rejected update must not apply partially")
	}
}
