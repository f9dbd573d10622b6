package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"positionengine/src/engine"
	"positionengine/src/model"
)

type mockForceCloser struct {
	err    error
	closed []uint
}

func (m *mockForceCloser) ForceClose(ctx context.Context, positionID uint, reason string) error {
	if m.err != nil {
		return m.err
	}
	m.closed = append(m.closed, positionID)
	return nil
}

func forceCloseRequest(id string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/positions/"+id+"/close", strings.NewReader(`{"reason":"manual"}`))
	req = authed(req, &model.Account{ID: 1})

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestForceCloseHandler_Closes(t *testing.T) {
	mock := &mockForceCloser{}
	handler := ForceCloseHandler(mock)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, forceCloseRequest("5"))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if len(mock.closed) != 1 || mock.closed[0] != 5 {
		t.Fatalf("expected position 5 closed, got %v", mock.closed)
	}
}

func TestForceCloseHandler_Rejection(t *testing.T) {
	mock := &mockForceCloser{err: &engine.RejectionError{Reason: "position 8 is on the live ledger, only paper positions can be force-closed"}}
	handler := ForceCloseHandler(mock)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, forceCloseRequest("8"))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "live ledger") {
		t.Fatalf("rejection reason missing from body: %s", rr.Body.String())
	}
}

func TestForceCloseHandler_EngineError(t *testing.T) {
	mock := &mockForceCloser{err: assert.AnError}
	handler := ForceCloseHandler(mock)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, forceCloseRequest("5"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}
