package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var errEmptyBody = errors.New("request body is required")

type requestDecodeError struct {
	status  int
	message string
	field   string
}

func (e *requestDecodeError) Error() string { return e.message }

// decodeJSONBody decodes a single JSON object into dst and rejects fields
// dst does not declare.
func decodeJSONBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return &requestDecodeError{status: http.StatusBadRequest, message: errEmptyBody.Error()}
		case errors.As(err, &tooLarge):
			return &requestDecodeError{status: http.StatusRequestEntityTooLarge, message: "request body too large"}
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return &requestDecodeError{status: http.StatusBadRequest, message: "request body contains malformed JSON"}
		case errors.As(err, &typeErr) && typeErr.Field == "":
			return &requestDecodeError{status: http.StatusBadRequest, message: "request body must be a JSON object"}
		case errors.As(err, &typeErr):
			return &requestDecodeError{
				status:  http.StatusBadRequest,
				message: fmt.Sprintf("%s must be a %s", typeErr.Field, jsonKind(typeErr.Type.Kind().String())),
				field:   typeErr.Field,
			}
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return &requestDecodeError{
				status:  http.StatusBadRequest,
				message: fmt.Sprintf("%s is not a writable field", field),
				field:   field,
			}
		default:
			return &requestDecodeError{status: http.StatusBadRequest, message: "invalid request payload"}
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &requestDecodeError{status: http.StatusBadRequest, message: "request body must contain a single JSON object"}
	}
	return nil
}

func jsonKind(goKind string) string {
	switch goKind {
	case "string":
		return "string"
	case "bool":
		return "boolean"
	case "float32", "float64", "int", "int64", "uint", "uint64":
		return "number"
	default:
		return goKind
	}
}
