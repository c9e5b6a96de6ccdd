package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type quoteRequest struct {
	Pair     string          `json:"pair" validate:"required,trading_pair"`
	Price    decimal.Decimal `json:"price" validate:"gt=0"`
	Currency string          `json:"currency" default:"USD" validate:"len=3"`
}

func bind(t *testing.T, body string) (*quoteRequest, []ValidationError) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	out := &quoteRequest{}
	verr := ReadAndValidateRequest(c, out)
	if verr == nil {
		return out, nil
	}
	list, ok := verr.([]ValidationError)
	if !ok {
		t.Fatalf("unexpected validation result %T", verr)
	}
	return out, list
}

func TestReadAndValidateRequest_Valid(t *testing.T) {
	got, verrs := bind(t, `{"pair":"EUR/USD","price":"1.0850"}`)
	if verrs != nil {
		t.Fatalf("unexpected errors: %+v", verrs)
	}
	if got.Currency != "USD" {
		t.Fatalf("default currency not applied: %q", got.Currency)
	}
	if !got.Price.Equal(decimal.RequireFromString("1.085")) {
		t.Fatalf("price = %s", got.Price)
	}
}

func TestReadAndValidateRequest_FieldErrors(t *testing.T) {
	_, verrs := bind(t, `{"pair":"EUR-USD","price":"0"}`)
	if len(verrs) != 2 {
		t.Fatalf("errors = %+v, want 2", verrs)
	}
	if verrs[0].Field != "pair" || verrs[0].Code != "ERR_TRADING_PAIR" {
		t.Fatalf("first error = %+v", verrs[0])
	}
	if verrs[1].Field != "price" || verrs[1].Code != "ERR_GT" {
		t.Fatalf("second error = %+v", verrs[1])
	}
}

func TestReadAndValidateRequest_MalformedBody(t *testing.T) {
	_, verrs := bind(t, `{"pair":`)
	if len(verrs) != 1 || verrs[0].Code != "ERR_MALFORMED_BODY" {
		t.Fatalf("errors = %+v", verrs)
	}
}
