package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
)

// minAnalysisWords is the sufficiency gate: transcripts shorter than this are
// routed to the insufficient-data path without an analysis call.
const minAnalysisWords = 10

var timestampLabel = regexp.MustCompile(`\[\d+(?::\d{2})+–\d+(?::\d{2})+\]`)

// FormatTime renders a seconds offset as H:MM:SS, omitting the hour when
// zero. A nil offset renders as "0:00".
func FormatTime(s *models.Seconds) string {
	if s == nil || *s < 0 {
		return "0:00"
	}
	total := int(*s)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatTranscript renders the engine output as blank-line-separated
// timestamped blocks, taking the first (highest-confidence) hypothesis of
// each segment and skipping empty ones. ok is false when no segment yields
// text: a "no speech" state distinct from an empty string.
func FormatTranscript(result *models.TranscriptionResult) (transcript string, ok bool) {
	var blocks []string
	for _, segment := range result.Segments {
		if len(segment.Alternatives) == 0 {
			continue
		}
		best := segment.Alternatives[0]
		text := strings.TrimSpace(best.Transcript)
		if text == "" {
			continue
		}
		if len(best.Words) > 0 {
			first := best.Words[0]
			last := best.Words[len(best.Words)-1]
			label := fmt.Sprintf("[%s–%s]", FormatTime(first.StartTime), FormatTime(last.EndTime))
			blocks = append(blocks, label+"\n"+text)
		} else {
			blocks = append(blocks, text)
		}
	}
	if len(blocks) == 0 {
		return "", false
	}
	return strings.Join(blocks, "\n\n"), true
}

// CountWords counts whitespace-delimited words after stripping timestamp
// labels, so the labels themselves never count toward sufficiency.
func CountWords(transcript string) int {
	stripped := timestampLabel.ReplaceAllString(transcript, "")
	return len(strings.Fields(stripped))
}

// SanitizeName makes an item name safe for attachment and artifact naming:
// characters outside a conservative set become underscores, and trailing
// underscores are stripped.
func SanitizeName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == ' ':
			return r
		default:
			return '_'
		}
	}, name)
	return strings.TrimRight(mapped, "_")
}
