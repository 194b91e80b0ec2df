package protocol

import "time"

// SynthesisRequest asks the node to speak Text. Empty fields take the node's
// configured defaults.
type SynthesisRequest struct {
	RequestID  string `json:"request_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Target     string `json:"target,omitempty"`
	Text       string `json:"text"`
	Language   string `json:"language,omitempty"`
	Voice      string `json:"voice,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Codec      string `json:"codec,omitempty"`
}

// SynthesisAudio carries one complete audio payload.
type SynthesisAudio struct {
	RequestID  string `json:"request_id"`
	SessionID  string `json:"session_id,omitempty"`
	Target     string `json:"target,omitempty"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Codec      string `json:"codec"`
	Container  string `json:"container"`
	Audio      []byte `json:"audio"`
}

// SynthesisStatus closes every request, successful or not.
type SynthesisStatus struct {
	RequestID string    `json:"request_id"`
	SessionID string    `json:"session_id,omitempty"`
	Target    string    `json:"target,omitempty"`
	Completed bool      `json:"completed"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTTSRequest = "tts.request"
	SubjectTTSAudio   = "tts.audio"
	SubjectTTSDone    = "tts.done"

	SubjectNodeAnnounce        = "ctrl.node.announce"
	SubjectNodeHeartbeatPrefix = "ctrl.node.heartbeat"
)
