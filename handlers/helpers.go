package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/playloop/arena/services"
)

type jsonResponse map[string]interface{}

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case err.Error() == "http: request body too large":
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err) // programmer error: non-pointer destination
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}
	js = append(js, '\n')

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

func errorResponse(w http.ResponseWriter, status int, code, message string) {
	env := jsonResponse{"error": jsonResponse{"code": code, "message": message}}
	if err := writeJSON(w, status, env); err != nil {
		slog.Error("write error response", slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func badRequestResponse(w http.ResponseWriter, err error) {
	errorResponse(w, http.StatusBadRequest, "VALIDATION", err.Error())
}

// mapServiceErrorToHTTP translates core error kinds to HTTP statuses, keeping
// the wire code identical to the realtime gateway's error events.
func mapServiceErrorToHTTP(w http.ResponseWriter, err error) {
	code := services.ErrorCode(err)
	switch {
	case errors.Is(err, services.ErrNotFound):
		errorResponse(w, http.StatusNotFound, code, err.Error())
	case errors.Is(err, services.ErrInvalidState):
		errorResponse(w, http.StatusConflict, code, err.Error())
	case errors.Is(err, services.ErrForbidden):
		errorResponse(w, http.StatusForbidden, code, err.Error())
	case errors.Is(err, services.ErrDuplicateSubmission):
		errorResponse(w, http.StatusConflict, code, err.Error())
	case errors.Is(err, services.ErrValidation):
		errorResponse(w, http.StatusUnprocessableEntity, code, err.Error())
	default:
		slog.Error("internal server error", slog.Any("error", err))
		errorResponse(w, http.StatusInternalServerError, code,
			"the server encountered a problem and could not process your request")
	}
}
