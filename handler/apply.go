package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rehiy/web-shortrange/service"
	"github.com/rehiy/web-shortrange/shortrange"
)

type H map[string]any

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError 按错误类别选择状态码
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotOpen), errors.Is(err, shortrange.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shortrange.ErrUnknownModuleType):
		status = http.StatusBadRequest
	case errors.Is(err, shortrange.ErrTransitionInProgress), errors.Is(err, service.ErrNotReady),
		errors.Is(err, service.ErrWrongMode):
		status = http.StatusConflict
	case errors.Is(err, shortrange.ErrTransitionTimeout):
		status = http.StatusGatewayTimeout
	}
	respondJSON(w, status, H{"error": err.Error()})
}
