// Пакет handlers — HTTP-обработчики certgate: справки, ключи доступа,
// health endpoints и информация о сервисе.
package handlers

import (
	"encoding/json"
	"net/http"
)

// ServiceName — имя сервиса в ответах health и /.
const ServiceName = "certgate"

// maxBodyBytes — предел размера JSON-тела запроса.
const maxBodyBytes = 64 << 10

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса в dst. Неизвестные поля допускаются:
// панель администратора присылает дополнительные атрибуты.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}
