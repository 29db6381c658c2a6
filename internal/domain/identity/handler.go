package identity

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medbook/medbook/internal/platform/apperror"
	"github.com/medbook/medbook/internal/platform/auth"
	"github.com/medbook/medbook/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, tm *auth.TokenManager) {
	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/refresh", h.Refresh)
	authGroup.POST("/logout", h.Logout, auth.RequireAuth(tm))
	authGroup.GET("/google", h.GoogleRedirect)
	authGroup.GET("/google/callback", h.GoogleCallback)

	users := api.Group("/users", auth.RequireAuth(tm))
	users.GET("/me", h.Me)
	users.GET("/doctors", h.ListDoctors)
	users.GET("/doctors/available", h.ListAvailableDoctors)
	users.PUT("/me/specialties", h.ReplaceSpecialties, auth.RequireRole(string(RoleDoctor)))
}

// tokenResponse is the envelope returned by every operation that signs in.
type tokenResponse struct {
	Status       string `json:"status"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	Data         struct {
		User *User `json:"user"`
	} `json:"data"`
}

func newTokenResponse(res *AuthResult) tokenResponse {
	resp := tokenResponse{
		Status:       "success",
		Token:        res.Token,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    res.ExpiresIn,
	}
	resp.Data.User = res.User
	return resp
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.LastName == "" {
		return apperror.BadRequest("Please provide email, password, first name and last name")
	}

	res, err := h.svc.Register(c.Request().Context(), RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newTokenResponse(res))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return apperror.BadRequest("Please provide email and password")
	}

	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newTokenResponse(res))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	if req.RefreshToken == "" {
		return apperror.BadRequest("Refresh token is required")
	}

	res, err := h.svc.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newTokenResponse(res))
}

func (h *Handler) Logout(c echo.Context) error {
	userID, err := uuid.Parse(auth.UserIDFromContext(c))
	if err != nil {
		return apperror.Unauthorized("Invalid token")
	}
	if err := h.svc.Logout(c.Request().Context(), userID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Logged out successfully",
	})
}

func (h *Handler) GoogleRedirect(c echo.Context) error {
	url, err := h.svc.GoogleAuthURL()
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, url)
}

func (h *Handler) GoogleCallback(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return apperror.Unauthorized("Authentication failed")
	}

	res, err := h.svc.GoogleLogin(c.Request().Context(), code, state)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newTokenResponse(res))
}

func (h *Handler) Me(c echo.Context) error {
	userID, err := uuid.Parse(auth.UserIDFromContext(c))
	if err != nil {
		return apperror.Unauthorized("Invalid token")
	}
	user, err := h.svc.Me(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   map[string]interface{}{"user": user},
	})
}

func (h *Handler) ListDoctors(c echo.Context) error {
	return h.listDoctors(c, false)
}

// ListAvailableDoctors behaves like ListDoctors but always applies the
// availability filter, defaulting the date to today.
func (h *Handler) ListAvailableDoctors(c echo.Context) error {
	return h.listDoctors(c, true)
}

func (h *Handler) listDoctors(c echo.Context, defaultToday bool) error {
	pg := pagination.FromContext(c)

	var q DoctorQuery
	q.SearchTerm = c.QueryParam("searchTerm")

	if raw := c.QueryParam("categoryId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperror.BadRequest("Invalid category id")
		}
		q.CategoryID = &id
	}

	if raw := c.QueryParam("date"); raw != "" {
		day, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return apperror.BadRequest("Invalid date, expected YYYY-MM-DD")
		}
		q.Date = &day
	} else if defaultToday {
		today := time.Now()
		q.Date = &today
	}

	doctors, total, err := h.svc.ListDoctors(c.Request().Context(), q, pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(doctors, total, pg.Page, pg.Limit))
}

type specialtiesRequest struct {
	CategoryIDs []string `json:"categoryIds"`
}

func (h *Handler) ReplaceSpecialties(c echo.Context) error {
	doctorID, err := uuid.Parse(auth.UserIDFromContext(c))
	if err != nil {
		return apperror.Unauthorized("Invalid token")
	}

	var req specialtiesRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("Invalid request body")
	}

	categoryIDs := make([]uuid.UUID, 0, len(req.CategoryIDs))
	for _, raw := range req.CategoryIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperror.BadRequest("Invalid category id")
		}
		categoryIDs = append(categoryIDs, id)
	}

	specialties, err := h.svc.ReplaceSpecialties(c.Request().Context(), doctorID, categoryIDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   map[string]interface{}{"specialties": specialties},
	})
}
