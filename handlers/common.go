package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"immich-service/models"

	"github.com/umakantv/go-utils/errs"
	"github.com/umakantv/go-utils/httpserver"
	logger "github.com/umakantv/go-utils/logger"
	"go.uber.org/zap"
)

// logRequest logs with the route details the http server put on ctx.
// Format: timestamp - route - method - path [- client] - message
func logRequest(ctx context.Context, level string, message string, fields ...zap.Field) {
	routeName := httpserver.GetRouteName(ctx)
	method := httpserver.GetRouteMethod(ctx)
	path := httpserver.GetRoutePath(ctx)
	auth := httpserver.GetRequestAuth(ctx)

	logMsg := time.Now().Format("2006-01-02 15:04:05") + " - " + routeName + " - " + method + " - " + path
	if auth != nil {
		logMsg += " - client:" + auth.Client
	}
	if message != "" {
		logMsg += " - " + message
	}

	allFields := append([]zap.Field{
		zap.String("route", routeName),
		zap.String("method", method),
		zap.String("path", path),
	}, fields...)

	switch level {
	case "info":
		logger.Info(logMsg, allFields...)
	case "error":
		logger.Error(logMsg, allFields...)
	case "debug":
		logger.Debug(logMsg, allFields...)
	}
}

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody reads a JSON body into v and validates it. On failure the 400
// response has already been written and false is returned.
func decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logRequest(ctx, "error", "Invalid request body", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errs.NewValidationError("Invalid JSON"))
		return false
	}
	return validateBody(ctx, w, v)
}

// validationErrorResponse is the 400 body for a rejected request: the joined
// message plus each failed field and rule
type validationErrorResponse struct {
	*errs.AppError
	Errors models.ValidationErrors `json:"errors"`
}

// validateBody rejects v with a 400 naming each failed field and rule
func validateBody(ctx context.Context, w http.ResponseWriter, v interface{}) bool {
	err := models.Validate(v)
	if err == nil {
		return true
	}

	var verrs models.ValidationErrors
	if errors.As(err, &verrs) {
		logRequest(ctx, "error", "Validation failed", zap.Any("violations", verrs))
		writeJSON(w, http.StatusBadRequest, validationErrorResponse{
			AppError: errs.NewValidationError(verrs.Error()),
			Errors:   verrs,
		})
		return false
	}

	logRequest(ctx, "error", "Validator error", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Validation error"))
	return false
}
