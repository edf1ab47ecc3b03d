// Package respond writes the uniform JSON envelope used by every endpoint:
//
//	{"statusCode": 200, "data": ..., "message": "...", "success": true}
package respond

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/alecgard/taskara/internal/apperr"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Envelope is the response shape for both successes and failures.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// JSON writes data wrapped in the envelope with the given status code.
func JSON(w http.ResponseWriter, statusCode int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Envelope{
		StatusCode: statusCode,
		Data:       data,
		Message:    message,
		Success:    statusCode < http.StatusBadRequest,
	})
}

// Error writes err as a failed envelope. The status is taken from the error
// kind; unclassified errors become 500 with a generic message.
func Error(w http.ResponseWriter, err error) {
	JSON(w, apperr.StatusOf(err), nil, apperr.MessageOf(err))
}

// Decode reads a JSON request body into v, enforcing a size limit. An empty
// body leaves v untouched.
func Decode(r *http.Request, v any) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	if err := json.NewDecoder(lr).Decode(v); err != nil && err != io.EOF {
		return apperr.Wrap(apperr.Validation, "failed to parse request body", err)
	}
	return nil
}
