package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/llm"

	"github.com/rs/zerolog"
)

type ModelHandler struct {
	logger zerolog.Logger
}

func NewModelHandler(logger zerolog.Logger) *ModelHandler {
	return &ModelHandler{logger: logger}
}

func (h *ModelHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /models", h.listModels)
}

// listModels godoc
// @Summary List available models
// @Description Returns the models chat responses can be generated with.
// @Tags models
// @Produce json
// @Success 200 {array} dto.ModelResponseDTO
// @Router /models [get]
func (h *ModelHandler) listModels(w http.ResponseWriter, r *http.Request) {
	models := llm.AvailableModels()
	resp := make([]dto.ModelResponseDTO, len(models))
	for i, m := range models {
		resp[i] = dto.ModelResponseDTO{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
			Provider:    string(m.Provider),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
