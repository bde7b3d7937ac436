package gateway

// Event types sent to the client as JSON text messages.
const (
	eventTranscript  = "transcript"
	eventResponse    = "response"
	eventSpeechStart = "speech_start"
	eventSpeechEnd   = "speech_end"
	eventError       = "error"
)

// clientEvent is a JSON text message sent to the client.
type clientEvent struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`
}

// Control types accepted from the client.
const (
	controlInterrupt = "interrupt"
)

// controlMessage is a JSON text message received from the client.
type controlMessage struct {
	Type string `json:"type"`
}
