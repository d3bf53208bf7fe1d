package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoJSONObject means the model output contained no {...} span.
	ErrNoJSONObject = errors.New("no JSON object found in response")
	// ErrMalformedJSON means the {...} span did not decode.
	ErrMalformedJSON = errors.New("malformed JSON in response")
	// ErrIncompleteCulture means the cultura object is missing or wrong-typed.
	ErrIncompleteCulture = errors.New("incomplete cultural data in response")

	ErrPersist            = errors.New("persist failed")
	ErrBusy               = errors.New("generation already in progress")
	ErrRecordNotFound     = errors.New("history record not found")
	ErrUnknownProvince    = errors.New("unknown province")
	ErrInconsistentComune = errors.New("comune does not belong to province")
)

// MalformedJSONError carries the decoder message for ErrMalformedJSON.
type MalformedJSONError struct {
	Err error
}

func (e *MalformedJSONError) Error() string {
	return fmt.Sprintf("%s: %v", ErrMalformedJSON, e.Err)
}

func (e *MalformedJSONError) Is(target error) bool { return target == ErrMalformedJSON }

func (e *MalformedJSONError) Unwrap() error { return e.Err }

// ServiceError is a structured failure reported by the enrichment service.
type ServiceError struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("enrichment service error %d (%s): %s", e.Code, e.Status, e.Message)
}

// Transient reports whether the failure is a temporary server-side error
// worth retrying by hand.
func (e *ServiceError) Transient() bool {
	return e.Code == 500
}

// serviceErrorFromMessage recognises error messages that are themselves a
// JSON error envelope, as some client libraries stringify them.
func serviceErrorFromMessage(msg string) (*ServiceError, bool) {
	msg = strings.TrimSpace(msg)
	if !strings.HasPrefix(msg, "{") {
		return nil, false
	}
	var envelope struct {
		Error *ServiceError `json:"error"`
	}
	if err := json.Unmarshal([]byte(msg), &envelope); err != nil {
		return nil, false
	}
	if envelope.Error == nil || envelope.Error.Message == "" {
		return nil, false
	}
	return envelope.Error, true
}

func findServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if se, ok := serviceErrorFromMessage(e.Error()); ok {
			return se, true
		}
	}
	return nil, false
}

// UserMessage turns an operation failure into the Italian text shown to the
// user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var malformed *MalformedJSONError
	switch {
	case errors.Is(err, ErrBusy):
		return "Generazione già in corso."
	case errors.Is(err, ErrPersist):
		return "Impossibile salvare il comune nella cronologia."
	case errors.As(err, &malformed):
		return fmt.Sprintf("L'API ha fornito una stringa JSON non valida: %v", malformed.Err)
	case errors.Is(err, ErrNoJSONObject):
		return "L'API non ha fornito una risposta contenente un oggetto JSON valido."
	case errors.Is(err, ErrIncompleteCulture):
		return "I dati culturali nel JSON di risposta sono incompleti o malformati."
	case errors.Is(err, ErrRecordNotFound):
		return "Elemento della cronologia non trovato."
	case errors.Is(err, ErrUnknownProvince):
		return "Provincia sconosciuta."
	}

	if se, ok := findServiceError(err); ok {
		if se.Transient() {
			return fmt.Sprintf("Si è verificato un errore temporaneo del server (%s). Per favore, riprova tra qualche istante.", se.Status)
		}
		return fmt.Sprintf("Errore API: %s", se.Message)
	}

	return fmt.Sprintf("Impossibile recuperare i dati: %v", err)
}
