package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	logauth "github.com/origbo/logware-auth"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, code int, data envelope) {
	body := envelope{"status": "success"}
	for k, v := range data {
		body[k] = v
	}
	writeJSON(w, code, body)
}

func writeFail(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, envelope{"status": "fail", "message": message})
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, envelope{"status": "error", "message": message})
}

// writeEngineError maps engine error kinds to status codes. Lock errors
// carry the expiry so clients can show the remaining time.
func writeEngineError(w http.ResponseWriter, err error) {
	var locked *logauth.LockedError
	if errors.As(err, &locked) {
		remaining := time.Until(locked.Until)
		if remaining < 0 {
			remaining = 0
		}
		writeJSON(w, http.StatusLocked, envelope{
			"status":           "fail",
			"message":          "account temporarily locked",
			"lockedUntil":      locked.Until.UTC().Format(time.RFC3339),
			"minutesRemaining": int((remaining + time.Minute - 1) / time.Minute),
		})
		return
	}

	switch logauth.KindOf(err) {
	case logauth.KindValidation:
		writeFail(w, http.StatusUnprocessableEntity, err.Error())
	case logauth.KindAuthentication:
		writeFail(w, http.StatusUnauthorized, err.Error())
	case logauth.KindAuthorization:
		writeFail(w, http.StatusForbidden, err.Error())
	case logauth.KindConflict:
		writeFail(w, http.StatusConflict, err.Error())
	case logauth.KindLocked:
		writeFail(w, http.StatusLocked, err.Error())
	case logauth.KindInfrastructure:
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
