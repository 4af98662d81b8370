package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Seconds is a time offset in decimal seconds. The transcription engine is
// inconsistent about how it encodes offsets: depending on the serialization
// path they arrive as a decimal-seconds string ("12.500s"), a bare number, or
// a {seconds, nanos} object whose seconds field may itself be a string. All
// forms decode into the same value.
type Seconds float64

func (s *Seconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	switch data[0] {
	case '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("offset is not a valid string: %w", err)
		}
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "s")
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("offset %q is not a decimal-seconds value: %w", raw, err)
		}
		*s = Seconds(v)
		return nil
	case '{':
		var pair struct {
			Seconds json.Number `json:"seconds"`
			Nanos   json.Number `json:"nanos"`
		}
		if err := json.Unmarshal(data, &pair); err != nil {
			return fmt.Errorf("offset is not a valid {seconds, nanos} pair: %w", err)
		}
		var total float64
		if pair.Seconds != "" {
			sec, err := pair.Seconds.Float64()
			if err != nil {
				return fmt.Errorf("offset seconds %q: %w", pair.Seconds, err)
			}
			total += sec
		}
		if pair.Nanos != "" {
			nanos, err := pair.Nanos.Float64()
			if err != nil {
				return fmt.Errorf("offset nanos %q: %w", pair.Nanos, err)
			}
			total += nanos / 1e9
		}
		*s = Seconds(total)
		return nil
	default:
		v, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("offset %s is not a number: %w", data, err)
		}
		*s = Seconds(v)
		return nil
	}
}

// WordInfo is one word of a hypothesis with its time offsets. The engine
// emits camelCase keys on one output path and snake_case on another; both are
// accepted.
type WordInfo struct {
	Word      string
	StartTime *Seconds
	EndTime   *Seconds
}

func (w *WordInfo) UnmarshalJSON(data []byte) error {
	var raw struct {
		Word           string   `json:"word"`
		StartTime      *Seconds `json:"startTime"`
		EndTime        *Seconds `json:"endTime"`
		StartTimeSnake *Seconds `json:"start_time"`
		EndTimeSnake   *Seconds `json:"end_time"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("malformed word entry: %w", err)
	}
	w.Word = raw.Word
	w.StartTime = raw.StartTime
	if w.StartTime == nil {
		w.StartTime = raw.StartTimeSnake
	}
	w.EndTime = raw.EndTime
	if w.EndTime == nil {
		w.EndTime = raw.EndTimeSnake
	}
	return nil
}

// SpeechAlternative is one hypothesis for a segment. The first alternative in
// a segment is the highest-confidence one by engine convention.
type SpeechAlternative struct {
	Transcript string     `json:"transcript"`
	Confidence float64    `json:"confidence,omitempty"`
	Words      []WordInfo `json:"words,omitempty"`
}

// SpeechSegment is one annotation segment of the engine output.
type SpeechSegment struct {
	Alternatives []SpeechAlternative `json:"alternatives"`
	EndTime      *Seconds            `json:"resultEndTime,omitempty"`
}

// TranscriptionResult is the JSON document the engine writes to the output
// location when a job completes. Immutable once written.
type TranscriptionResult struct {
	Segments []SpeechSegment `json:"results"`
	Duration *Seconds        `json:"totalBilledTime,omitempty"`
}

// ParseTranscriptionResult decodes and validates an engine output document.
// Malformed payloads are rejected here, at the boundary, instead of letting
// half-decoded values flow into formatting.
func ParseTranscriptionResult(data []byte) (*TranscriptionResult, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty transcription output")
	}
	var result TranscriptionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("malformed transcription output: %w", err)
	}
	for i, seg := range result.Segments {
		for j, alt := range seg.Alternatives {
			for k, word := range alt.Words {
				if word.StartTime == nil || word.EndTime == nil {
					return nil, fmt.Errorf("segment %d alternative %d word %d is missing time offsets", i, j, k)
				}
			}
		}
	}
	return &result, nil
}

// TotalDuration is the overall duration of the source audio: the engine's
// reported total when present, otherwise the end offset of the last timed
// word.
func (r *TranscriptionResult) TotalDuration() *Seconds {
	if r.Duration != nil {
		return r.Duration
	}
	var last *Seconds
	for _, seg := range r.Segments {
		if len(seg.Alternatives) == 0 {
			continue
		}
		words := seg.Alternatives[0].Words
		if len(words) > 0 {
			last = words[len(words)-1].EndTime
		}
	}
	return last
}
