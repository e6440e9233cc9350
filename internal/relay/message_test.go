package relay

import "testing"

func TestEnvelopePayload(t *testing.T) {
	tests := []struct {
		name string
		from string
		body string
		want string
	}{
		{"plain", "A", "hi", "A: hi"},
		{"embedded colons", "A", "x: y: z", "A: x: y: z"},
		{"empty body", "B", "", "B: "},
		{"sender with colon", "a:b", "msg", "a:b: msg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(TextEnvelope(tt.from, tt.body).Payload())
			if got != tt.want {
				t.Errorf("Payload() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	if KindText.String() != "text" || KindClose.String() != "close" || Kind(9).String() != "unknown" {
		t.Error("Unexpected kind names")
	}
}
