package appointment

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
	appointments := api.Group("/appointments", auth.RequireAuth(tm))

	appointments.POST("", h.Create, auth.RequireRole("patient"))
	appointments.GET("/patient", h.ListForPatient, auth.RequireRole("patient"))
	appointments.GET("/doctor", h.ListForDoctor, auth.RequireRole("doctor"))
	appointments.PATCH("/:id", h.Update, auth.RequireRole("doctor"))
	appointments.POST("/:id/prescription", h.AddPrescription, auth.RequireRole("doctor"))
}

type createRequest struct {
	DoctorID        string     `json:"doctorId"`
	CategoryID      string     `json:"categoryId"`
	AppointmentDate *time.Time `json:"appointmentDate"`
}

func (h *Handler) Create(c echo.Context) error {
	patientID, err := uuid.Parse(auth.UserIDFromContext(c))
	if err != nil {
		return apperror.Unauthorized("Invalid token")
	}

	var req createRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return apperror.NotFound("Doctor not found")
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		return apperror.NotFound("Category not found")
	}

	a, err := h.svc.Create(c.Request().Context(), patientID, CreateInput{
		DoctorID:        doctorID,
		CategoryID:      categoryID,
		AppointmentDate: req.AppointmentDate,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"status": "success",
		"data":   map[string]interface{}{"appointment": a},
	})
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(auth.UserIDFromContext(c))
	if err != nil {
		return apperror.Unauthorized("Invalid token")
	}
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	appointments, total, err := h.svc.ListForPatient(c.Request().Context(), patientID, f, pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(appointments, total, pg.Page, pg.Limit))
}

func (h *Handler) ListForDoctor(c echo.Context) error {
	doctorID, err := uuid.Parse(auth.UserIDFromContext(c))
	if err != nil {
		return apperror.Unauthorized("Invalid token")
	}
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	appointments, total, err := h.svc.ListForDoctor(c.Request().Context(), doctorID, f, pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(appointments, total, pg.Page, pg.Limit))
}

type updateRequest struct {
	Status          *string    `json:"status"`
	AppointmentDate *time.Time `json:"appointmentDate"`
}

func (h *Handler) Update(c echo.Context) error {
	doctorID, err := uuid.Parse(auth.UserIDFromContext(c))
	if err != nil {
		return apperror.Unauthorized("Invalid token")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NotFound("Appointment not found")
	}

	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("Invalid request body")
	}

	var in UpdateInput
	if req.Status != nil {
		status, err := ParseStatus(*req.Status)
		if err != nil {
			return apperror.BadRequest("Invalid appointment status")
		}
		in.Status = &status
	}
	in.AppointmentDate = req.AppointmentDate

	a, err := h.svc.Update(c.Request().Context(), doctorID, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   map[string]interface{}{"appointment": a},
	})
}

type prescriptionRequest struct {
	Prescription string `json:"prescription"`
}

func (h *Handler) AddPrescription(c echo.Context) error {
	doctorID, err := uuid.Parse(auth.UserIDFromContext(c))
	if err != nil {
		return apperror.Unauthorized("Invalid token")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NotFound("Appointment not found")
	}

	var req prescriptionRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("Invalid request body")
	}

	a, err := h.svc.AddPrescription(c.Request().Context(), doctorID, id, req.Prescription)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   map[string]interface{}{"appointment": a},
	})
}

func filterFromQuery(c echo.Context) (Filter, error) {
	var f Filter
	if raw := c.QueryParam("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			return f, apperror.BadRequest("Invalid appointment status")
		}
		f.Status = &status
	}
	if raw := c.QueryParam("categoryId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, apperror.BadRequest("Invalid category id")
		}
		f.CategoryID = &id
	}
	return f, nil
}
