package booking

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/genelab/dnabooking/internal/domain/catalog"
	"github.com/genelab/dnabooking/internal/domain/relationship"
	"github.com/genelab/dnabooking/internal/platform/auth"
	"github.com/genelab/dnabooking/internal/platform/document"
	"github.com/genelab/dnabooking/pkg/pagination"
)

// StaffRoles may read every booking.
var StaffRoles = []string{"staff", "manager", "admin"}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Reference data
	api.GET("/catalog", h.GetCatalog)
	api.GET("/relationships", h.GetRelationships)
	api.GET("/timeslots", h.GetTimeSlots)

	// Wizard
	api.POST("/bookings/quote", h.Quote)
	api.POST("/bookings/validate", h.Validate)

	// Submitted bookings
	api.GET("/bookings", h.ListBookings, auth.RequireRole(StaffRoles...))
	api.GET("/bookings/mine", h.ListMyBookings)
	api.GET("/bookings/:id", h.GetBooking)
	api.GET("/bookings/:id/document", h.DownloadDocument)
}

func (h *Handler) GetCatalog(c echo.Context) error {
	set := h.svc.Catalogs()
	t := c.QueryParam("service_type")
	if t == "" {
		return c.JSON(http.StatusOK, set)
	}
	cat, err := set.For(catalog.ServiceType(t))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, cat)
}

type relationshipsResponse struct {
	Service             string               `json:"service"`
	Participant1Options []relationship.Label `json:"participant1_options"`
	Participant2Options []relationship.Label `json:"participant2_options,omitempty"`
	ForcedSampleType    string               `json:"forced_sample_type,omitempty"`
}

func (h *Handler) GetRelationships(c echo.Context) error {
	service := c.QueryParam("service")
	if service == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "service is required")
	}
	if _, err := relationship.Pairs(service); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp := relationshipsResponse{
		Service:             service,
		Participant1Options: relationship.Participant1Options(service),
	}
	if p1 := relationship.Label(c.QueryParam("participant1")); p1 != "" {
		resp.Participant2Options = relationship.Participant2Options(service, p1)
		if p2 := relationship.Label(c.QueryParam("participant2")); p2 != "" {
			resp.ForcedSampleType, _ = relationship.ForcedSampleType(service, p2)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetTimeSlots(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	d, err := ParseDate(date, h.svc.Location())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	now := h.svc.Now()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"date":           date,
		"slots":          SlotAvailability(d, now),
		"all_slots_past": AllSlotsPast(d, now),
	})
}

type quoteResponse struct {
	Breakdown        interface{}  `json:"cost_breakdown"`
	TransportOptions interface{}  `json:"transport_options"`
	Warnings         []FieldError `json:"warnings,omitempty"`
}

func (h *Handler) Quote(c echo.Context) error {
	var st FormState
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f := h.svc.Form(st)
	return c.JSON(http.StatusOK, quoteResponse{
		Breakdown:        f.Quote(),
		TransportOptions: f.TransportOptions(),
		Warnings:         f.Warnings(),
	})
}

func (h *Handler) Validate(c echo.Context) error {
	var st FormState
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	draft, err := h.svc.Validate(st)
	if err != nil {
		return validationHTTPError(err)
	}
	return c.JSON(http.StatusOK, draft)
}

// validationHTTPError turns ValidationErrors into a 422 listing every field.
func validationHTTPError(err error) error {
	if ve, ok := AsValidation(err); ok {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": "validation failed",
			"errors":  ve,
		})
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

var listFilters = []string{"customer_id", "service_type", "status", "payment_method", "appointment_date"}

func (h *Handler) ListBookings(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := make(map[string]string)
	for _, k := range listFilters {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	items, total, err := h.svc.List(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewPage(c.Request().URL, items, total, pg))
}

func (h *Handler) ListMyBookings(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	if uid == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByCustomer(c.Request().Context(), uid, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewPage(c.Request().URL, items, total, pg))
}

// lookup resolves :id, accepting either a booking id or a payment code, and
// checks that the caller owns the booking or is staff.
func (h *Handler) lookup(c echo.Context) (*Record, error) {
	ctx := c.Request().Context()
	key := c.Param("id")
	var (
		rec *Record
		err error
	)
	if id, perr := uuid.Parse(key); perr == nil {
		rec, err = h.svc.Get(ctx, id)
	} else {
		rec, err = h.svc.GetByPaymentCode(ctx, strings.ToUpper(key))
	}
	if errors.Is(err, ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "booking not found")
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !auth.HasRole(ctx, StaffRoles...) && rec.CustomerID != auth.UserIDFromContext(ctx) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "booking not found")
	}
	return rec, nil
}

func (h *Handler) GetBooking(c echo.Context) error {
	rec, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DownloadDocument(c echo.Context) error {
	rec, err := h.lookup(c)
	if err != nil {
		return err
	}
	pdf, name, err := h.svc.Document(c.Request().Context(), rec)
	if err != nil {
		return DocumentHTTPError(err)
	}
	return SendPDF(c, name, pdf)
}

// DocumentHTTPError maps a document failure to a response carrying the
// user-facing message for its category.
func DocumentHTTPError(err error) error {
	status := http.StatusInternalServerError
	switch document.CategoryOf(err) {
	case document.CategoryMissingInfo, document.CategorySignature:
		status = http.StatusUnprocessableEntity
	case document.CategoryTimeout:
		status = http.StatusGatewayTimeout
	}
	return echo.NewHTTPError(status, map[string]string{
		"message":  document.UserMessage(err),
		"category": string(document.CategoryOf(err)),
	})
}

// SendPDF writes pdf as a download named name.
func SendPDF(c echo.Context, name string, pdf []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}
