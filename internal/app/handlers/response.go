package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/linemk/datashop/internal/service"
)

const (
	msgOrderCreationFailed = "order creation failed"
	msgInternalError       = "internal error"
)

var validate = newValidator()

// имена полей в ошибках берутся из json-тегов
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ValidationErrorResponse struct {
	Errors map[string]string `json:"errors"`
}

type StockErrorResponse struct {
	Message   string `json:"message"`
	ProductID int64  `json:"product_id"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func writeValidation(w http.ResponseWriter, logger *slog.Logger, fields map[string]string) {
	writeJSON(w, logger, http.StatusUnprocessableEntity, ValidationErrorResponse{Errors: fields})
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ. failMsg уходит клиенту
// при непредвиденной ошибке, подробности остаются в логе.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error, failMsg string) {
	var (
		verr     *service.ValidationError
		stockErr *service.StockError
	)
	switch {
	case errors.As(err, &verr):
		writeValidation(w, logger, verr.Fields)
	case errors.As(err, &stockErr):
		writeJSON(w, logger, http.StatusBadRequest, StockErrorResponse{
			Message:   stockErr.Error(),
			ProductID: stockErr.ProductID,
		})
	case errors.Is(err, service.ErrUnauthorized):
		writeJSON(w, logger, http.StatusForbidden, MessageResponse{Message: "unauthorized"})
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrProductNotFound):
		writeJSON(w, logger, http.StatusNotFound, MessageResponse{Message: err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		writeJSON(w, logger, http.StatusUnauthorized, MessageResponse{Message: err.Error()})
	case errors.Is(err, service.ErrEmailTaken):
		writeValidation(w, logger, map[string]string{"email": "has already been taken"})
	default:
		logger.Error("request failed", slog.Any("error", err))
		writeJSON(w, logger, http.StatusInternalServerError, MessageResponse{Message: failMsg})
	}
}

// decodeAndValidate читает JSON и проверяет теги validate. При ошибке ответ уже отправлен.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.Warn("invalid request: decoding error", slog.Any("error", err))
		writeValidation(w, logger, map[string]string{"body": "must be a valid JSON object"})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		logger.Warn("invalid request: validation error", slog.Any("error", err))
		writeValidation(w, logger, validationFields(err))
		return false
	}
	return true
}

var indexRe = regexp.MustCompile(`\[(\d+)\]`)

// validationFields превращает ошибки validator в сообщения по полям: items[0].quantity -> items.0.quantity
func validationFields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		fields[indexRe.ReplaceAllString(ns, ".$1")] = fieldMessage(fe)
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.String {
			return fmt.Sprintf("must contain at least %s", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return "is invalid"
}

// idParam разбирает положительный id из пути. Иначе отвечает 404, как на несуществующую запись.
func idParam(w http.ResponseWriter, r *http.Request, logger *slog.Logger, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		logger.Warn("invalid id in path", slog.String("param", name), slog.String("value", chi.URLParam(r, name)))
		writeJSON(w, logger, http.StatusNotFound, MessageResponse{Message: "not found"})
		return 0, false
	}
	return id, true
}
