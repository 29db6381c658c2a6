package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/medbook/medbook/internal/platform/apperror"
	"github.com/medbook/medbook/internal/platform/auth"
)

// GoogleExchanger is the part of the Google OAuth client the service needs.
type GoogleExchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleProfile, error)
}

// AvailabilityChecker reports which of the given doctors already have a
// pending or accepted appointment on the given day.
type AvailabilityChecker interface {
	BusyDoctorIDs(ctx context.Context, doctorIDs []uuid.UUID, day time.Time) (map[uuid.UUID]bool, error)
}

// CategoryChecker verifies category ids against the catalog.
type CategoryChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// AuthResult is a signed token pair plus the account it belongs to.
type AuthResult struct {
	Token        string
	RefreshToken string
	ExpiresIn    int64
	User         *User
}

type Service struct {
	users        Repository
	tokens       *auth.TokenManager
	google       GoogleExchanger
	availability AvailabilityChecker
	categories   CategoryChecker
}

func NewService(users Repository, tokens *auth.TokenManager, google GoogleExchanger, availability AvailabilityChecker, categories CategoryChecker) *Service {
	return &Service{
		users:        users,
		tokens:       tokens,
		google:       google,
		availability: availability,
		categories:   categories,
	}
}

// RegisterInput carries a new account request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	role, err := ParseRole(in.Role)
	if err != nil {
		return nil, apperror.BadRequest("Role must be either patient or doctor")
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperror.BadRequest("Email already exists")
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	hashStr := string(hash)

	user := &User{
		Email:        in.Email,
		PasswordHash: &hashStr,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	return s.issuePair(ctx, user)
}

func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.Unauthorized("Incorrect email or password")
		}
		return nil, err
	}
	// OAuth-only accounts have no password and fail the same way.
	if user.PasswordHash == nil {
		return nil, apperror.Unauthorized("Incorrect email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, apperror.Unauthorized("Incorrect email or password")
	}

	return s.issuePair(ctx, user)
}

// Refresh validates a refresh token against the stored hash and rotates it.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.Parse(refreshToken)
	if err != nil || claims.TokenType != auth.TokenTypeRefresh {
		return nil, apperror.Unauthorized("Invalid refresh token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperror.Unauthorized("Invalid refresh token")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.Unauthorized("Invalid refresh token")
		}
		return nil, err
	}
	if user.RefreshTokenHash == nil || *user.RefreshTokenHash != auth.HashToken(refreshToken) {
		return nil, apperror.Unauthorized("Invalid refresh token")
	}

	return s.issuePair(ctx, user)
}

// Logout revokes the caller's refresh token.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	return s.users.UpdateRefreshTokenHash(ctx, userID, nil)
}

// GoogleAuthURL returns the Google authorization redirect, with a signed
// state nonce tying the callback back to this service.
func (s *Service) GoogleAuthURL() (string, error) {
	if s.google == nil {
		return "", apperror.NotFound("Google sign-in is not enabled")
	}
	state, err := s.tokens.IssueState()
	if err != nil {
		return "", err
	}
	return s.google.AuthCodeURL(state), nil
}

// GoogleLogin exchanges a callback code for a profile and finds or creates
// the matching account. Every failure collapses to the same 401.
func (s *Service) GoogleLogin(ctx context.Context, code, state string) (*AuthResult, error) {
	if s.google == nil {
		return nil, apperror.NotFound("Google sign-in is not enabled")
	}
	if err := s.tokens.VerifyState(state); err != nil {
		return nil, apperror.Unauthorized("Authentication failed")
	}
	profile, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, apperror.Unauthorized("Authentication failed")
	}

	user, err := s.findOrCreateGoogleUser(ctx, profile)
	if err != nil {
		return nil, apperror.Unauthorized("Authentication failed")
	}
	return s.issuePair(ctx, user)
}

func (s *Service) findOrCreateGoogleUser(ctx context.Context, profile *auth.GoogleProfile) (*User, error) {
	user, err := s.users.GetByGoogleID(ctx, profile.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// An account registered with a password gets the Google account linked.
	user, err = s.users.GetByEmail(ctx, profile.Email)
	if err == nil {
		if err := s.users.LinkGoogleID(ctx, user.ID, profile.Subject); err != nil {
			return nil, err
		}
		user.GoogleID = &profile.Subject
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	user = &User{
		Email:     profile.Email,
		FirstName: profile.GivenName,
		LastName:  profile.FamilyName,
		Role:      RolePatient,
		GoogleID:  &profile.Subject,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Me loads the caller's profile, with specialties for doctors.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("User not found")
		}
		return nil, err
	}
	if user.Role == RoleDoctor {
		specialties, err := s.users.SpecialtiesByDoctor(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		user.Specialties = specialties
	}
	return user, nil
}

// DoctorQuery narrows the doctor directory. A non-nil Date keeps only
// doctors without a pending or accepted appointment on that day.
type DoctorQuery struct {
	CategoryID *uuid.UUID
	SearchTerm string
	Date       *time.Time
}

// ListDoctors returns a page of the doctor directory. When a date filter is
// given, busy doctors are removed from the page after it is loaded, and the
// reported total is the count of doctors remaining on this page.
func (s *Service) ListDoctors(ctx context.Context, q DoctorQuery, limit, offset int) ([]*Doctor, int, error) {
	doctors, total, err := s.users.ListDoctors(ctx, DoctorFilter{
		CategoryID: q.CategoryID,
		SearchTerm: q.SearchTerm,
	}, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if q.Date == nil {
		if doctors == nil {
			doctors = []*Doctor{}
		}
		return doctors, total, nil
	}
	if len(doctors) == 0 {
		return []*Doctor{}, 0, nil
	}

	ids := make([]uuid.UUID, len(doctors))
	for i, d := range doctors {
		ids[i] = d.ID
	}
	busy, err := s.availability.BusyDoctorIDs(ctx, ids, *q.Date)
	if err != nil {
		return nil, 0, err
	}

	available := []*Doctor{}
	for _, d := range doctors {
		if !busy[d.ID] {
			available = append(available, d)
		}
	}
	return available, len(available), nil
}

// ReplaceSpecialties swaps the doctor's specialty set for the given category
// ids and returns the updated set.
func (s *Service) ReplaceSpecialties(ctx context.Context, doctorID uuid.UUID, categoryIDs []uuid.UUID) ([]Specialty, error) {
	for _, id := range categoryIDs {
		ok, err := s.categories.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperror.NotFound("Category not found")
		}
	}
	if err := s.users.ReplaceSpecialties(ctx, doctorID, categoryIDs); err != nil {
		return nil, err
	}
	return s.users.SpecialtiesByDoctor(ctx, doctorID)
}

func (s *Service) issuePair(ctx context.Context, user *User) (*AuthResult, error) {
	token, err := s.tokens.IssueAccess(user.ID.String(), string(user.Role))
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(user.ID.String(), string(user.Role))
	if err != nil {
		return nil, err
	}
	hash := auth.HashToken(refresh)
	if err := s.users.UpdateRefreshTokenHash(ctx, user.ID, &hash); err != nil {
		return nil, err
	}
	user.RefreshTokenHash = &hash

	return &AuthResult{
		Token:        token,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		User:         user,
	}, nil
}
