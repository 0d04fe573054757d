package web

import (
	"fmt"
	"log/slog"
	"net/http"
)

const sessionIDKey = "sessionId"

// getSessionID reads the session id stored in the cookie. An unreadable
// cookie counts as no session.
func (h *Handler) getSessionID(r *http.Request) string {
	session, err := h.cookieStore.Get(r, h.sessionName)
	if err != nil {
		slog.DebugContext(r.Context(), "ignoring unreadable session cookie", "error", err)

		return ""
	}

	sessionID, _ := session.Values[sessionIDKey].(string)

	return sessionID
}

func (h *Handler) setSessionID(w http.ResponseWriter, r *http.Request, sessionID string) error {
	session, err := h.cookieStore.Get(r, h.sessionName)
	if err != nil && session == nil {
		return fmt.Errorf("error getting session: %w", err)
	}

	session.Values[sessionIDKey] = sessionID

	err = session.Save(r, w)
	if err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}

	return nil
}

func (h *Handler) deleteSessionID(w http.ResponseWriter, r *http.Request) error {
	session, err := h.cookieStore.Get(r, h.sessionName)
	if err != nil && session == nil {
		return fmt.Errorf("error getting session: %w", err)
	}

	delete(session.Values, sessionIDKey)

	err = session.Save(r, w)
	if err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}

	return nil
}
