package stream

import (
	"encoding/json"
	"strings"

	"github.com/selffix/reasonview/internal/domain"
)

// EventMarker is the fixed prefix identifying a stream line as carrying a
// structured event payload.
const EventMarker = "data: "

// Outcome classifies one decoded line.
type Outcome int

const (
	// OutcomeNotEvent means the line does not carry the event marker.
	OutcomeNotEvent Outcome = iota
	// OutcomeStep means a reasoning step was extracted.
	OutcomeStep
	// OutcomeIgnored means a well-formed payload of some other type.
	OutcomeIgnored
	// OutcomeMalformed means the payload failed to parse. Never fatal.
	OutcomeMalformed
)

// envelope is the wire shape of one streamed record.
type envelope struct {
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content"`
	Timestamp float64         `json:"timestamp"`
}

// ParseLine decides whether one decoded line is a reasoning-step event and,
// if so, extracts it. Unknown payload types are ignored for forward
// compatibility. A malformed payload is reported via the returned
// MalformedEventError but must never abort the stream.
func ParseLine(line string) (domain.ReasoningStep, Outcome, error) {
	if !strings.HasPrefix(line, EventMarker) {
		return domain.ReasoningStep{}, OutcomeNotEvent, nil
	}

	payload := strings.TrimPrefix(line, EventMarker)

	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return domain.ReasoningStep{}, OutcomeMalformed, &domain.MalformedEventError{Line: line, Err: err}
	}
	if env.Type != "reasoning_step" {
		return domain.ReasoningStep{}, OutcomeIgnored, nil
	}

	var step domain.ReasoningStep
	if len(env.Content) > 0 {
		if err := json.Unmarshal(env.Content, &step); err != nil {
			return domain.ReasoningStep{}, OutcomeMalformed, &domain.MalformedEventError{Line: line, Err: err}
		}
	}

	// Producers that nest no step fields inside content still get the
	// whole content carried through opaquely, and the envelope timestamp
	// stands in when the step carries none.
	if step.Content == nil {
		step.Content = env.Content
	}
	if step.Timestamp == 0 {
		step.Timestamp = env.Timestamp
	}

	return step, OutcomeStep, nil
}
