package handlers

import (
	"net/http"

	"github.com/bigkaa/certgate/internal/config"
)

type homeResponse struct {
	Servicio string            `json:"servicio"`
	Version  string            `json:"version"`
	Comandos map[string]string `json:"comandos"`
}

// Home — GET /. Имя сервиса и примеры вызовов.
func Home(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, homeResponse{
		Servicio: ServiceName,
		Version:  config.Version,
		Comandos: map[string]string{
			"penales":    "/antpen?dni=12345678&key=TU_API_KEY",
			"policiales": "/antpol?dni=12345678&key=TU_API_KEY",
			"judiciales": "/antjud?dni=12345678&key=TU_API_KEY",
			"consulta":   "/api/v1/queries/{penal|police|judicial}/{dni}",
		},
	})
}
