package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/certgate/internal/domain/model"
)

func TestRateLimit_PerKey(t *testing.T) {
	h := RateLimit(0.001, 2)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(keyID string) int {
		req := httptest.NewRequest(http.MethodGet, "/antpen", nil)
		req = req.WithContext(context.WithValue(req.Context(), ContextKeyAPIKey, &model.APIKey{ID: keyID}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if do("a") != http.StatusOK || do("a") != http.StatusOK {
		t.Fatal("первые два запроса в пределах burst должны пройти")
	}
	if code := do("a"); code != http.StatusTooManyRequests {
		t.Errorf("третий запрос: статус %d, ожидается 429", code)
	}
	if code := do("b"); code != http.StatusOK {
		t.Errorf("другой ключ не должен ограничиваться: статус %d", code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(0, 0)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/antpen", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("запрос #%d: статус %d при выключенном лимите", i+1, rec.Code)
		}
	}
}

func TestClientID_FallsBackToIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	if got := clientID(req); got != "ip:10.0.0.7" {
		t.Errorf("clientID = %q, ожидается ip:10.0.0.7", got)
	}
}
