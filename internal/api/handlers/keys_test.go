package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/certgate/internal/domain/model"
	"github.com/bigkaa/certgate/internal/service"
)

// fakeKeys — KeyManager с функциями-полями.
type fakeKeys struct {
	createFn   func(ttl time.Duration, description string) (string, *model.APIKey, error)
	registerFn func(raw, description string, expiresAt time.Time) (*model.APIKey, error)
	deleteFn   func(raw string) error
	listFn     func() ([]*model.APIKey, error)
}

func (f *fakeKeys) Create(_ context.Context, ttl time.Duration, description string) (string, *model.APIKey, error) {
	return f.createFn(ttl, description)
}

func (f *fakeKeys) Register(_ context.Context, raw, description string, expiresAt time.Time) (*model.APIKey, error) {
	return f.registerFn(raw, description, expiresAt)
}

func (f *fakeKeys) Delete(_ context.Context, raw string) error {
	return f.deleteFn(raw)
}

func (f *fakeKeys) List(_ context.Context) ([]*model.APIKey, error) {
	return f.listFn()
}

func postJSON(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestRegisterKey(t *testing.T) {
	var gotRaw, gotDesc string
	var gotExp time.Time
	keys := &fakeKeys{registerFn: func(raw, desc string, exp time.Time) (*model.APIKey, error) {
		gotRaw, gotDesc, gotExp = raw, desc, exp
		return &model.APIKey{ID: "id-1", Description: desc, ExpiresAt: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)}, nil
	}}
	h := NewKeyHandler(keys, testClock(), testLogger())

	rec := httptest.NewRecorder()
	h.RegisterKey(rec, postJSON("/register-key", `{"key":"panel-key-0123456789","expires_at":"2026-03-01T12:00:00"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d (%s)", rec.Code, rec.Body.String())
	}
	if gotRaw != "panel-key-0123456789" {
		t.Errorf("key = %q", gotRaw)
	}
	if gotDesc != defaultKeyDescription {
		t.Errorf("description = %q, ожидается значение по умолчанию", gotDesc)
	}
	if !gotExp.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("expires_at = %v", gotExp)
	}

	var resp keyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	if resp.Status != model.KeyStatusActive || resp.ID != "id-1" {
		t.Errorf("ответ = %+v", resp)
	}
	if strings.Contains(rec.Body.String(), "panel-key-0123456789") {
		t.Error("значение ключа не должно возвращаться при регистрации")
	}
}

func TestRegisterKey_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"некорректный JSON", `{"key":`, nil, http.StatusBadRequest},
		{"нет ключа", `{"description":"x"}`, nil, http.StatusBadRequest},
		{"некорректная дата", `{"key":"panel-key-0123456789","expires_at":"завтра"}`, nil, http.StatusBadRequest},
		{"валидация", `{"key":"short"}`, fmt.Errorf("%w: короткий", service.ErrValidation), http.StatusBadRequest},
		{"конфликт", `{"key":"panel-key-0123456789"}`, fmt.Errorf("%w: есть", service.ErrConflict), http.StatusConflict},
		{"сбой БД", `{"key":"panel-key-0123456789"}`, fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := &fakeKeys{registerFn: func(string, string, time.Time) (*model.APIKey, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return &model.APIKey{ID: "id"}, nil
			}}
			h := NewKeyHandler(keys, testClock(), testLogger())

			rec := httptest.NewRecorder()
			h.RegisterKey(rec, postJSON("/register-key", tt.body))
			if rec.Code != tt.status {
				t.Errorf("статус = %d, ожидается %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestDeleteKey(t *testing.T) {
	keys := &fakeKeys{deleteFn: func(raw string) error {
		if raw == "cg_missing_0123456789" {
			return fmt.Errorf("%w: ключ", service.ErrNotFound)
		}
		return nil
	}}
	h := NewKeyHandler(keys, testClock(), testLogger())

	rec := httptest.NewRecorder()
	h.DeleteKey(rec, postJSON("/delete-key", `{"key":"cg_0123456789abcdef0123"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d (%s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "cg_01234...cdef0123") {
		t.Errorf("ответ должен содержать маскированный ключ: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.DeleteKey(rec, postJSON("/delete-key", `{"key":"cg_missing_0123456789"}`))
	if rec.Code != http.StatusNotFound {
		t.Errorf("статус = %d, ожидается 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.DeleteKey(rec, postJSON("/delete-key", `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус = %d, ожидается 400", rec.Code)
	}
}

func TestListKeys(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	revoked := now.Add(-time.Minute)
	keys := &fakeKeys{listFn: func() ([]*model.APIKey, error) {
		return []*model.APIKey{
			{ID: "a", ExpiresAt: now.Add(time.Hour)},
			{ID: "b", ExpiresAt: now.Add(-time.Hour)},
			{ID: "c", ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked},
		}, nil
	}}
	h := NewKeyHandler(keys, testClock(), testLogger())

	rec := httptest.NewRecorder()
	h.ListKeys(rec, httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	var resp keyListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	if resp.Total != 3 {
		t.Fatalf("total = %d, ожидается 3", resp.Total)
	}
	want := []string{model.KeyStatusActive, model.KeyStatusExpired, model.KeyStatusRevoked}
	for i, st := range want {
		if resp.Items[i].Status != st {
			t.Errorf("items[%d].status = %q, ожидается %q", i, resp.Items[i].Status, st)
		}
	}
}

func TestCreateKey(t *testing.T) {
	var gotTTL time.Duration
	keys := &fakeKeys{createFn: func(ttl time.Duration, desc string) (string, *model.APIKey, error) {
		gotTTL = ttl
		return "cg_new", &model.APIKey{ID: "n", Description: desc, ExpiresAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}, nil
	}}
	h := NewKeyHandler(keys, testClock(), testLogger())

	rec := httptest.NewRecorder()
	h.CreateKey(rec, postJSON("/api/v1/keys", `{"description":"ci","ttl_minutes":120}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d (%s)", rec.Code, rec.Body.String())
	}
	if gotTTL != 2*time.Hour {
		t.Errorf("ttl = %v, ожидается 2h", gotTTL)
	}
	var resp createKeyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	if resp.Key != "cg_new" || resp.Description != "ci" {
		t.Errorf("ответ = %+v", resp)
	}

	rec = httptest.NewRecorder()
	h.CreateKey(rec, postJSON("/api/v1/keys", `{"ttl_minutes":-1}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("отрицательный ttl: статус = %d, ожидается 400", rec.Code)
	}
}
