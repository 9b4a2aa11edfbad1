package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeChecker struct {
	status, msg string
}

func (f fakeChecker) CheckReady() (string, string) { return f.status, f.msg }

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		session    ReadinessChecker
		pg         ReadinessChecker
		wantStatus string
		wantCode   int
	}{
		{"всё готово", fakeChecker{"ok", ""}, fakeChecker{"ok", ""}, "ok", http.StatusOK},
		{"сессия переподключается", fakeChecker{"degraded", "reconnect"}, fakeChecker{"ok", ""}, "degraded", http.StatusOK},
		{"БД недоступна", fakeChecker{"ok", ""}, fakeChecker{"fail", "refused"}, "fail", http.StatusServiceUnavailable},
		{"сессия не создана", nil, fakeChecker{"ok", ""}, "fail", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.session, tt.pg)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.wantCode)
			}
			var resp healthReadyResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("ответ не JSON: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, ожидается %q", resp.Status, tt.wantStatus)
			}
			if resp.Service != ServiceName {
				t.Errorf("service = %q", resp.Service)
			}
		})
	}
}

func TestHealthLegacyAndLive(t *testing.T) {
	h := NewHealthHandler(nil, nil)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var legacy healthLegacyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &legacy); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	if rec.Code != http.StatusOK || legacy.Status != "OK" || legacy.Timestamp == "" {
		t.Errorf("/health = %d %+v", rec.Code, legacy)
	}

	rec = httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health/live = %d", rec.Code)
	}
}

func TestHome(t *testing.T) {
	rec := httptest.NewRecorder()
	Home(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp homeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	if resp.Servicio != ServiceName || resp.Comandos["penales"] == "" {
		t.Errorf("ответ = %+v", resp)
	}
}

func TestOverallStatus(t *testing.T) {
	if got := overallStatus("ok", "ok"); got != "ok" {
		t.Errorf("ok+ok = %q", got)
	}
	if got := overallStatus("degraded", "fail"); got != "fail" {
		t.Errorf("degraded+fail = %q", got)
	}
	if got := overallStatus(); got != "ok" {
		t.Errorf("пустой список = %q", got)
	}
}
