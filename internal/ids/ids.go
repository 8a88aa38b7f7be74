// Package ids generates the identifiers used for staging sessions, chat
// histories, chat messages and saved image versions.
package ids

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	sessionPrefix = "vs_"
	chatPrefix    = "chat_"
	messagePrefix = "msg_"
	versionPrefix = "ver_"
)

var sessionRegex = regexp.MustCompile(`^vs_[0-9a-f]{12}$`)

// Session returns a new staging session id (vs_<12 hex>).
func Session() string {
	return sessionPrefix + shortHex()
}

// ChatHistory derives the chat history id paired with a session.
func ChatHistory(sessionID string) string {
	return chatPrefix + sessionID
}

// Message returns a new chat message id (msg_<12 hex>).
func Message() string {
	return messagePrefix + shortHex()
}

// Version returns a new saved-version id (ver_<12 hex>).
func Version() string {
	return versionPrefix + shortHex()
}

// ValidSession reports whether id has the shape produced by Session.
func ValidSession(id string) bool {
	return sessionRegex.MatchString(id)
}

// Short returns the first n hex characters of a random UUID.
func Short(n int) string {
	h := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(h) {
		n = len(h)
	}
	return h[:n]
}

func shortHex() string {
	return Short(12)
}
