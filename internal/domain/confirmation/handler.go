package confirmation

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/genelab/dnabooking/internal/domain/booking"
	"github.com/genelab/dnabooking/internal/platform/auth"
	"github.com/genelab/dnabooking/internal/platform/document"
	"github.com/genelab/dnabooking/internal/platform/payment"
	"github.com/genelab/dnabooking/internal/platform/signature"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/confirmations")
	g.POST("", h.Start)
	g.GET("/:id", h.Get)
	g.POST("/:id/confirm", h.Confirm)
	g.POST("/:id/payment", h.ConfirmPayment)
	g.POST("/:id/signature", h.Sign)
	g.POST("/:id/pdf", h.FinishPDF)
	g.POST("/:id/edit", h.Edit)
	g.DELETE("/:id", h.Cancel)
	g.GET("/:id/document", h.DownloadDocument)
}

type sessionResponse struct {
	*Session
	Step    int    `json:"step"`
	Message string `json:"message,omitempty"`
}

func respond(c echo.Context, status int, sess *Session) error {
	return c.JSON(status, sessionResponse{Session: sess, Step: sess.Step(), Message: Message(sess)})
}

// owned loads the session and hides it from other customers.
func (h *Handler) owned(c echo.Context) (*Session, error) {
	ctx := c.Request().Context()
	sess, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		return nil, httpError(err)
	}
	if sess.CustomerID != auth.UserIDFromContext(ctx) {
		return nil, echo.NewHTTPError(http.StatusNotFound, ErrSessionNotFound.Error())
	}
	return sess, nil
}

func (h *Handler) Start(c echo.Context) error {
	var st booking.FormState
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	customer := auth.UserIDFromContext(c.Request().Context())
	if customer == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "sign in to book")
	}
	sess, err := h.svc.Start(c.Request().Context(), customer, st)
	if err != nil {
		return httpError(err)
	}
	return respond(c, http.StatusCreated, sess)
}

func (h *Handler) Get(c echo.Context) error {
	sess, err := h.owned(c)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, sess)
}

type confirmRequest struct {
	PaymentMethod booking.PaymentMethod `json:"payment_method"`
}

func (h *Handler) Confirm(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := h.owned(c); err != nil {
		return err
	}
	sess, err := h.svc.Confirm(c.Request().Context(), c.Param("id"), req.PaymentMethod)
	if err != nil {
		return httpError(err)
	}
	return respond(c, http.StatusOK, sess)
}

func (h *Handler) ConfirmPayment(c echo.Context) error {
	if _, err := h.owned(c); err != nil {
		return err
	}
	sess, err := h.svc.ConfirmPayment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return respond(c, http.StatusOK, sess)
}

type signRequest struct {
	Signature string `json:"signature"`
}

func (h *Handler) Sign(c echo.Context) error {
	var req signRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := h.owned(c); err != nil {
		return err
	}
	sess, err := h.svc.Sign(c.Request().Context(), c.Param("id"), req.Signature)
	if err != nil {
		return httpError(err)
	}
	return respond(c, http.StatusOK, sess)
}

// FinishPDF submits a cash booking. With ?download=true the response is the
// document itself; otherwise the finished session.
func (h *Handler) FinishPDF(c echo.Context) error {
	download, _ := strconv.ParseBool(c.QueryParam("download"))
	if _, err := h.owned(c); err != nil {
		return err
	}
	sess, pdf, err := h.svc.FinishPDF(c.Request().Context(), c.Param("id"), download)
	if err != nil {
		return httpError(err)
	}
	if download {
		return booking.SendPDF(c, document.FileName(sess.PaymentCode), pdf)
	}
	return respond(c, http.StatusOK, sess)
}

func (h *Handler) Edit(c echo.Context) error {
	if _, err := h.owned(c); err != nil {
		return err
	}
	st, err := h.svc.Edit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Cancel(c echo.Context) error {
	if _, err := h.owned(c); err != nil {
		return err
	}
	if err := h.svc.Cancel(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DownloadDocument(c echo.Context) error {
	if _, err := h.owned(c); err != nil {
		return err
	}
	pdf, name, err := h.svc.Document(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return booking.SendPDF(c, name, pdf)
}

func httpError(err error) error {
	if ve, ok := booking.AsValidation(err); ok {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": "booking details are incomplete",
			"errors":  ve,
		})
	}
	var de *document.Error
	if errors.As(err, &de) || errors.Is(err, context.DeadlineExceeded) {
		return booking.DocumentHTTPError(err)
	}
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBusy), errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrNotDone):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, signature.ErrEmpty), errors.Is(err, signature.ErrTooSimple), errors.Is(err, signature.ErrUnreadable):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, booking.ErrUnknownPayment):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrNoAccount):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "bank transfer is currently unavailable, please pay in cash")
	case errors.Is(err, ErrSubmission):
		return echo.NewHTTPError(http.StatusBadGateway, ErrSubmission.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
