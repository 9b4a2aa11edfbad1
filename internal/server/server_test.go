package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"

	"github.com/bigkaa/certgate/internal/api/handlers"
	"github.com/bigkaa/certgate/internal/api/middleware"
	"github.com/bigkaa/certgate/internal/clock"
	"github.com/bigkaa/certgate/internal/config"
	"github.com/bigkaa/certgate/internal/domain/model"
	"github.com/bigkaa/certgate/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type okChecker struct{}

func (okChecker) CheckReady() (string, string) { return "ok", "" }

type fakeValidator struct{}

func (fakeValidator) Validate(_ context.Context, raw string) (*model.APIKey, error) {
	switch raw {
	case "":
		return nil, service.ErrKeyMissing
	case "good-key":
		return &model.APIKey{ID: "k1"}, nil
	}
	return nil, service.ErrKeyInvalid
}

type fakeSubmitter struct{}

func (fakeSubmitter) Submit(_ context.Context, req model.QueryRequest) model.QueryResult {
	return model.QueryResult{
		Outcome: model.OutcomeSuccess,
		Fields:  model.Fields{model.FieldIdentifier: req.Identifier},
	}
}

func newTestRouter(t *testing.T, withJWT bool) http.Handler {
	t.Helper()
	clk := clock.Stepping(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	h := Handlers{
		Health:    handlers.NewHealthHandler(okChecker{}, okChecker{}),
		Query:     handlers.NewQueryHandler(fakeSubmitter{}, clk, testLogger()),
		Keys:      handlers.NewKeyHandler(nil, clk, testLogger()),
		Validator: fakeValidator{},
	}
	if withJWT {
		kf, err := keyfunc.NewJWKSetJSON(json.RawMessage(`{"keys":[]}`))
		if err != nil {
			t.Fatalf("keyfunc: %v", err)
		}
		h.JWT = middleware.NewJWTAuthWithKeyfunc(kf, "", []string{"certgate-admins"}, testLogger())
	}
	return NewRouter(&config.Config{}, testLogger(), h)
}

func serve(h http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PublicRoutes(t *testing.T) {
	r := newTestRouter(t, false)
	for _, path := range []string{"/", "/health", "/health/live", "/health/ready", "/metrics"} {
		if rec := serve(r, http.MethodGet, path, nil); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, ожидается 200", path, rec.Code)
		}
	}
}

func TestRouter_QueryRequiresKey(t *testing.T) {
	r := newTestRouter(t, false)

	if rec := serve(r, http.MethodGet, "/antpen?dni=12345678", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("без ключа: %d, ожидается 401", rec.Code)
	}
	if rec := serve(r, http.MethodGet, "/antpen?dni=12345678&key=bad-key", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("неизвестный ключ: %d, ожидается 401", rec.Code)
	}
	if rec := serve(r, http.MethodGet, "/antpol?dni=12345678&key=good-key", nil); rec.Code != http.StatusOK {
		t.Errorf("ключ в query: %d, ожидается 200", rec.Code)
	}
	rec := serve(r, http.MethodGet, "/api/v1/queries/judicial/12345678", map[string]string{middleware.HeaderAPIKey: "good-key"})
	if rec.Code != http.StatusOK {
		t.Errorf("ключ в заголовке: %d, ожидается 200 (%s)", rec.Code, rec.Body.String())
	}
}

func TestRouter_AdminRoutes(t *testing.T) {
	without := newTestRouter(t, false)
	if rec := serve(without, http.MethodGet, "/api/v1/keys", nil); rec.Code != http.StatusNotFound {
		t.Errorf("без JWT: %d, ожидается 404", rec.Code)
	}

	with := newTestRouter(t, true)
	if rec := serve(with, http.MethodGet, "/api/v1/keys", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("без токена: %d, ожидается 401", rec.Code)
	}
	if rec := serve(with, http.MethodPost, "/delete-key", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("delete-key без токена: %d, ожидается 401", rec.Code)
	}
}
