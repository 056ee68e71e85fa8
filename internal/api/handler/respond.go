// internal/api/handler/respond.go
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"tradebybarter-ledger/internal/api/middleware"
	"tradebybarter-ledger/internal/api/types"
	"tradebybarter-ledger/internal/util"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// statusFor maps an error category to its HTTP status.
func statusFor(err error) int {
	switch {
	case util.IsError(err, util.ErrInvalidInput), util.IsError(err, util.ErrInvalidState):
		return http.StatusBadRequest
	case util.IsError(err, util.ErrUnauthorized):
		return http.StatusUnauthorized
	case util.IsError(err, util.ErrForbidden):
		return http.StatusForbidden
	case util.IsError(err, util.ErrNotFound):
		return http.StatusNotFound
	case util.IsError(err, util.ErrConflict):
		return http.StatusConflict
	case util.IsError(err, util.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError writes err as a failure envelope. Internal errors are logged
// and hidden from the client.
func respondWithError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, message string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error("Unhandled service error", "path", r.URL.Path, "user_id", middleware.UserIDFromContext(r.Context()), "error", err)
		types.WriteError(w, code, message, "internal server error")
		return
	}
	types.WriteError(w, code, message, err.Error())
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// An empty body is allowed when optional is set.
func decodeAndValidate(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return util.NewError(util.ErrInvalidInput, "invalid JSON body: "+err.Error())
		}
	}
	if err := validate.Struct(dst); err != nil {
		return util.NewError(util.ErrInvalidInput, strings.Join(FormatValidationError(err), "; "))
	}
	return nil
}

// FormatValidationError turns validator errors into one message per field.
func FormatValidationError(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := e.Field()
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", field, e.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", field, e.Tag()))
		}
	}
	return msgs
}
