package types

import "unicode"

// Validate ensures an inbound user message meets wire requirements.
// Session ids stay opaque beyond basic sanity - they are routing keys,
// not identities.
func (m *UserMessage) Validate() error {
	if m.Content == "" {
		return ErrEmptyContent
	}
	if m.SessionID != "" && !IsValidSessionID(m.SessionID) {
		return ErrInvalidSessionID
	}
	return nil
}

// IsValidSessionID checks wire-level sanity for a session identifier.
// FUNCTIONAL DISCOVERY: 128 character cap prevents pathological keys in the
// registry and span store without constraining caller id schemes
func IsValidSessionID(sessionID string) bool {
	if len(sessionID) < 1 || len(sessionID) > 128 {
		return false
	}
	for _, r := range sessionID {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
