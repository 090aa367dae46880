package interceptors

import (
	"encoding/json"
	"errors"
	"net/http"

	pegerrors "github.com/arkade-os/pegd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrorDetails is the body of every failed response.
type ErrorDetails struct {
	Code     uint16            `json:"code"`
	Name     string            `json:"name"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WriteError renders a typed error with the http status of its code. Untyped errors are
// treated as internal errors.
func WriteError(w http.ResponseWriter, err error) {
	var structuredErr pegerrors.Error
	if !errors.As(err, &structuredErr) {
		structuredErr = pegerrors.INTERNAL_ERROR.Wrap(err)
	}

	if structuredErr.Code() == pegerrors.INTERNAL_ERROR.Code {
		structuredErr.Log().Error(structuredErr.Error())
	}

	WriteJSON(w, structuredErr.HttpStatus(), ErrorDetails{
		Code:     structuredErr.Code(),
		Name:     structuredErr.CodeName(),
		Message:  structuredErr.Error(),
		Metadata: structuredErr.Metadata(),
	})
}

// WriteBadRequest renders a malformed request, before it reaches the app service.
func WriteBadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, ErrorDetails{
		Code:    pegerrors.INVALID_ARGUMENT.Code,
		Name:    pegerrors.INVALID_ARGUMENT.Name,
		Message: msg,
	})
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}
