package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"positionengine/src/auth"
	"positionengine/src/engine"
	"positionengine/src/model"
)

type mockSubmitter struct {
	positionID  uint
	err         error
	lastSignal  *model.Signal
	calledCount int
}

func (m *mockSubmitter) SubmitSignal(ctx context.Context, signal *model.Signal) (uint, error) {
	m.calledCount++
	m.lastSignal = signal
	return m.positionID, m.err
}

func authed(req *http.Request, account *model.Account) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), auth.AccountKey, account))
}

func signalBody() string {
	return `{"symbol":"BTC_USDT","direction":"long","signal_type":"trend_follow","components":["macd_cross","breakout"],"price":50000,"margin":200,"leverage":10}`
}

func TestSubmitSignalHandler_Unauthorized(t *testing.T) {
	handler := SubmitSignalHandler(&mockSubmitter{})

	req := httptest.NewRequest(http.MethodPost, "/signals", strings.NewReader(signalBody()))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestSubmitSignalHandler_InvalidPayload(t *testing.T) {
	handler := SubmitSignalHandler(&mockSubmitter{})

	req := httptest.NewRequest(http.MethodPost, "/signals", strings.NewReader(`{"symbol":`))
	req = authed(req, &model.Account{ID: 1, BaseMargin: 100, MaxLeverage: 20})
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestSubmitSignalHandler_Accepted(t *testing.T) {
	mock := &mockSubmitter{positionID: 7}
	handler := SubmitSignalHandler(mock)

	req := httptest.NewRequest(http.MethodPost, "/signals", strings.NewReader(signalBody()))
	req = authed(req, &model.Account{ID: 3, BaseMargin: 100, MaxLeverage: 20})
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp submitResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.PositionID != 7 || resp.Status != "accepted" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	// The authenticated account is stamped onto the signal.
	if mock.lastSignal.AccountID != 3 {
		t.Fatalf("expected account 3 on signal, got %d", mock.lastSignal.AccountID)
	}
}

func TestSubmitSignalHandler_AccountDefaults(t *testing.T) {
	mock := &mockSubmitter{positionID: 1}
	handler := SubmitSignalHandler(mock)

	body := `{"symbol":"BTC_USDT","direction":"long","components":["macd_cross"],"price":50000}`
	req := httptest.NewRequest(http.MethodPost, "/signals", strings.NewReader(body))
	req = authed(req, &model.Account{ID: 1, BaseMargin: 150, MaxLeverage: 12})
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if mock.lastSignal.Margin != 150 || mock.lastSignal.Leverage != 12 {
		t.Fatalf("expected account defaults, got margin=%f leverage=%d",
			mock.lastSignal.Margin, mock.lastSignal.Leverage)
	}
}

func TestSubmitSignalHandler_Rejection(t *testing.T) {
	mock := &mockSubmitter{err: &engine.RejectionError{Reason: "combination blacklisted"}}
	handler := SubmitSignalHandler(mock)

	req := httptest.NewRequest(http.MethodPost, "/signals", strings.NewReader(signalBody()))
	req = authed(req, &model.Account{ID: 1, BaseMargin: 100, MaxLeverage: 20})
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "blacklisted") {
		t.Fatalf("rejection reason missing from body: %s", rr.Body.String())
	}
}

func TestSubmitSignalHandler_EngineError(t *testing.T) {
	mock := &mockSubmitter{err: assert.AnError}
	handler := SubmitSignalHandler(mock)

	req := httptest.NewRequest(http.MethodPost, "/signals", strings.NewReader(signalBody()))
	req = authed(req, &model.Account{ID: 1, BaseMargin: 100, MaxLeverage: 20})
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}
