// Package bridge is the cross-context messaging layer: a small localhost
// daemon standing in for an extension's background worker, plus the client
// used by the page session, the popup, and one-shot commands. The three
// contexts have independent lifetimes and share no memory; everything moves
// as typed envelopes with at-most-once, best-effort delivery.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Tag names a message type. The request/response contract per tag is fixed;
// see the Daemon handlers.
type Tag string

const (
	// TagOpenPopup asks for the popup surface to open. Ack only.
	TagOpenPopup Tag = "OPEN_POPUP"
	// TagOpenPopupWithText persists text into the handoff, then opens the
	// popup. Ack only.
	TagOpenPopupWithText Tag = "OPEN_POPUP_WITH_TEXT"
	// TagGetLastText returns the current handoff value (may be empty).
	TagGetLastText Tag = "GET_LAST_TEXT"
	// TagGetSelectedText returns the page's current selection.
	TagGetSelectedText Tag = "GET_SELECTED_TEXT"
	// TagGetChatText returns the located chat input's value.
	TagGetChatText Tag = "GET_CHATGPT_TEXT"
	// TagReplaceChatText overwrites the located chat input's value.
	TagReplaceChatText Tag = "REPLACE_CHATGPT_TEXT"
)

// Envelope is the one wire shape every message uses.
type Envelope struct {
	Type    Tag             `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an envelope, marshaling payload (nil payload allowed).
func NewEnvelope(tag Tag, payload any) (Envelope, error) {
	env := Envelope{Type: tag}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", tag, err)
		}
		env.Payload = data
	}
	return env, nil
}

// TextPayload carries a plain text field, used by several tags.
type TextPayload struct {
	Text string `json:"text"`
}

// Ack is the acknowledgment-only response body.
type Ack struct {
	OK bool `json:"ok"`
}

// ReplaceResult reports a REPLACE_CHATGPT_TEXT outcome. Success false with a
// populated Error is a normal answer, not a failure of the exchange.
type ReplaceResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TextSource selects which page text a GET maps to.
type TextSource string

const (
	SourceSelection TextSource = "selection"
	SourceInput     TextSource = "input"
)

// EventType names one entry kind on the daemon's event stream.
type EventType string

// Event is one entry on the daemon's event stream.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Page command events carry a correlation ID the page session echoes back in
// its reply.
const (
	EventPopupOpen      EventType = "popup.open"
	EventHandoffUpdated EventType = "handoff.updated"
	EventPageAttached   EventType = "page.attached"
	EventPageDetached   EventType = "page.detached"
	EventTextRequest    EventType = "page.text_request"
	EventReplaceRequest EventType = "page.replace_request"
)

// TextRequestData is the payload of an EventTextRequest command.
type TextRequestData struct {
	ID     string     `json:"id"`
	Source TextSource `json:"source"`
}

// ReplaceRequestData is the payload of an EventReplaceRequest command.
type ReplaceRequestData struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PageInfo describes the currently attached page session, if any.
type PageInfo struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// Health is the daemon's health-endpoint body.
type Health struct {
	Status  string    `json:"status"`
	Version string    `json:"version,omitempty"`
	Page    *PageInfo `json:"page,omitempty"`
}

// ErrContextInvalidated marks the host context (daemon, page, or browser)
// as gone mid-exchange. Call sites treat it as a cleanup signal, never as a
// user-facing failure.
var ErrContextInvalidated = errors.New("host context invalidated")

// replyTimeoutError distinguishes "page did not answer in time" in logs.
type replyTimeoutError struct {
	id string
}

func (e *replyTimeoutError) Error() string {
	return fmt.Sprintf("page reply %s timed out", e.id)
}
