package server

import (
	"encoding/json"
	"net/http"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const defaultLimit = 20
const maxLimit = 50
const defaultSuggestionsLimit = 10

const maxTextLength = 400
const maxAttachments = 4

// Error ...
// swagger:model
type Error struct {
	Error string `json:"error"`
}

// RegisterRequest ...
type RegisterRequest struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
	Password    string `json:"password"`
}

// LoginRequest ...
type LoginRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

// UpdateAccountRequest carries optional fields; absent ones keep their
// current value.
type UpdateAccountRequest struct {
	Handle      *string `json:"handle"`
	DisplayName *string `json:"displayName"`
	Bio         *string `json:"bio"`
	Avatar      *string `json:"avatar"`
}

// CreatePostRequest ...
type CreatePostRequest struct {
	Text        *string  `json:"text"`
	Attachments []string `json:"attachments"`
	ReplyToID   *int64   `json:"replyToId"`
	RepostOfID  *int64   `json:"repostOfId"`
}

func writeOK(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		writeInternalError(w, err, "failed to marshal response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b) // nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeOK(w, status, Error{Error: message})
}

func writeInternalError(w http.ResponseWriter, err error, message string) {
	logrus.WithError(err).Error(message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"error":"internal error"}`)) // nolint:errcheck
}

// isStringValid reports whether a value's rune count lies in [min, max].
func isStringValid(v string, min, max int) bool {
	l := utf8.RuneCountInString(v)
	return l >= min && l <= max
}
