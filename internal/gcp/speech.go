package gcp

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
)

// SpeechSubmitter submits long-running recognition jobs. Submission returns
// once the job is accepted; nothing in this process ever waits for the job to
// finish. The engine writes its result JSON to the requested output location,
// which raises the event that drives the next stage.
type SpeechSubmitter struct {
	client *speech.Client
}

// NewSpeechSubmitter creates the transcription job adapter.
func NewSpeechSubmitter(ctx context.Context) (*SpeechSubmitter, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &SpeechSubmitter{client: client}, nil
}

// Submit issues one recognition job for the given input URI, directing the
// result to the given output URI. Punctuation and word-level time offsets are
// always requested: the formatter downstream depends on the offsets.
func (s *SpeechSubmitter) Submit(ctx context.Context, inputURI, outputURI, languageCode string) error {
	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               languageCode,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: inputURI},
		},
		OutputConfig: &speechpb.TranscriptOutputConfig{
			OutputType: &speechpb.TranscriptOutputConfig_GcsUri{GcsUri: outputURI},
		},
	}
	if _, err := s.client.LongRunningRecognize(ctx, req); err != nil {
		return fmt.Errorf("failed to submit recognition job for %s: %w", inputURI, err)
	}
	return nil
}

func (s *SpeechSubmitter) Close() error {
	return s.client.Close()
}
