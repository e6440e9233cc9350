package relay

// Kind enumerates the envelopes a session accepts on its outbox.
type Kind uint8

const (
	// KindText delivers a text message from another session.
	KindText Kind = iota
	// KindClose asks the owning writer to close the transport.
	KindClose
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindClose:
		return "close"
	default:
		return "unknown"
	}
}

// Envelope is the unit pushed into a session's outbox.
type Envelope struct {
	Kind Kind
	From string
	Body string
}

// TextEnvelope builds a deliver-text envelope from sender id and payload.
func TextEnvelope(from, body string) Envelope {
	return Envelope{Kind: KindText, From: from, Body: body}
}

// Payload renders the frame written to the recipient: "{From}: {Body}".
// Body is passed through unmodified.
func (e Envelope) Payload() []byte {
	return []byte(e.From + ": " + e.Body)
}
