package confirmation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/genelab/dnabooking/internal/domain/booking"
	"github.com/genelab/dnabooking/internal/platform/auth"
	"github.com/genelab/dnabooking/internal/platform/signature/signaturetest"
)

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func asUser(req *http.Request, id string) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), id, []string{auth.RoleCustomer}))
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	return httpErr.Code
}

type handlerFixture struct {
	*fixture
	h *Handler
	e *echo.Echo
}

func newHandlerFixture() *handlerFixture {
	fx := newFixture(booking.NewMemoryRepo())
	return &handlerFixture{fixture: fx, h: NewHandler(fx.svc), e: echo.New()}
}

// call runs handler for session id as user and decodes a JSON response.
func (f *handlerFixture) call(t *testing.T, handler echo.HandlerFunc, req *http.Request, id, user string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	w := httptest.NewRecorder()
	c := f.e.NewContext(asUser(req, user), w)
	if id != "" {
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
	return w, handler(c)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) sessionResponse {
	t.Helper()
	var resp sessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestHandler_CashFlow(t *testing.T) {
	f := newHandlerFixture()

	w, err := f.call(t, f.h.Start, jsonRequest(t, http.MethodPost, "/confirmations", paternityState(booking.PaymentCash)), "", "customer-1")
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	started := decode(t, w)
	if started.Step != 1 || started.ID == "" {
		t.Fatalf("unexpected session %+v", started)
	}
	id := started.ID

	w, err = f.call(t, f.h.Confirm, jsonRequest(t, http.MethodPost, "/", confirmRequest{}), id, "customer-1")
	if err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	if resp := decode(t, w); resp.Step != 2 || resp.State != StateSignature || resp.PaymentCode != testCode {
		t.Fatalf("unexpected session %+v", resp)
	}

	_, err = f.call(t, f.h.Sign, jsonRequest(t, http.MethodPost, "/", signRequest{}), id, "customer-1")
	if httpStatus(t, err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an empty signature")
	}

	w, err = f.call(t, f.h.Sign, jsonRequest(t, http.MethodPost, "/", signRequest{Signature: signaturetest.Valid()}), id, "customer-1")
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	if resp := decode(t, w); resp.State != StatePDFConfirm {
		t.Fatalf("expected pdf-confirm, got %s", resp.State)
	}

	w, err = f.call(t, f.h.FinishPDF, httptest.NewRequest(http.MethodPost, "/?download=true", nil), id, "customer-1")
	if err != nil {
		t.Fatalf("FinishPDF error: %v", err)
	}
	if ct := w.Header().Get(echo.HeaderContentType); ct != "application/pdf" {
		t.Errorf("unexpected content type %s", ct)
	}
	if cd := w.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "dna-booking-"+testCode+".pdf") {
		t.Errorf("unexpected disposition %s", cd)
	}

	w, err = f.call(t, f.h.Get, httptest.NewRequest(http.MethodGet, "/", nil), id, "customer-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	done := decode(t, w)
	if done.Step != 4 || !strings.Contains(done.Message, testCode) {
		t.Errorf("unexpected finished session %+v", done)
	}

	w, err = f.call(t, f.h.DownloadDocument, httptest.NewRequest(http.MethodGet, "/", nil), id, "customer-1")
	if err != nil {
		t.Fatalf("DownloadDocument error: %v", err)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")) {
		t.Error("expected a PDF body")
	}
}

func TestHandler_StartRequiresUser(t *testing.T) {
	f := newHandlerFixture()
	req := jsonRequest(t, http.MethodPost, "/confirmations", paternityState(""))
	err := f.h.Start(f.e.NewContext(req, httptest.NewRecorder()))
	if httpStatus(t, err) != http.StatusUnauthorized {
		t.Errorf("expected 401")
	}
}

func TestHandler_StartInvalidForm(t *testing.T) {
	f := newHandlerFixture()
	st := paternityState("")
	st.HomeAddress = ""
	_, err := f.call(t, f.h.Start, jsonRequest(t, http.MethodPost, "/confirmations", st), "", "customer-1")
	if httpStatus(t, err) != http.StatusUnprocessableEntity {
		t.Errorf("expected 422")
	}
}

func TestHandler_Errors(t *testing.T) {
	f := newHandlerFixture()
	sess := f.start(t, booking.PaymentBankTransfer)

	_, err := f.call(t, f.h.Get, httptest.NewRequest(http.MethodGet, "/", nil), sess.ID, "customer-2")
	if httpStatus(t, err) != http.StatusNotFound {
		t.Errorf("expected 404 for another customer")
	}

	_, err = f.call(t, f.h.Get, httptest.NewRequest(http.MethodGet, "/", nil), "missing", "customer-1")
	if httpStatus(t, err) != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown session")
	}

	_, err = f.call(t, f.h.ConfirmPayment, httptest.NewRequest(http.MethodPost, "/", nil), sess.ID, "customer-1")
	if httpStatus(t, err) != http.StatusConflict {
		t.Errorf("expected 409 for paying before confirming")
	}

	_, err = f.call(t, f.h.DownloadDocument, httptest.NewRequest(http.MethodGet, "/", nil), sess.ID, "customer-1")
	if httpStatus(t, err) != http.StatusConflict {
		t.Errorf("expected 409 for a document before submission")
	}

	_, err = f.call(t, f.h.Confirm, jsonRequest(t, http.MethodPost, "/", confirmRequest{PaymentMethod: "card"}), sess.ID, "customer-1")
	if httpStatus(t, err) != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown payment method")
	}
}

func TestHandler_EditAndCancel(t *testing.T) {
	f := newHandlerFixture()

	sess := f.start(t, booking.PaymentCash)
	w, err := f.call(t, f.h.Edit, httptest.NewRequest(http.MethodPost, "/", nil), sess.ID, "customer-1")
	if err != nil {
		t.Fatalf("Edit error: %v", err)
	}
	if !strings.Contains(w.Body.String(), `"service_id":"NL01"`) {
		t.Errorf("expected the form state, got %s", w.Body.String())
	}

	sess = f.start(t, booking.PaymentCash)
	w, err = f.call(t, f.h.Cancel, httptest.NewRequest(http.MethodDelete, "/", nil), sess.ID, "customer-1")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	_, err = f.call(t, f.h.Get, httptest.NewRequest(http.MethodGet, "/", nil), sess.ID, "customer-1")
	if httpStatus(t, err) != http.StatusNotFound {
		t.Errorf("expected cancelled session to be gone")
	}
}
