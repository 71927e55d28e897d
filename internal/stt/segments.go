package stt

import "strings"

// segmentText folds segment-level results into one running transcript.
// Streaming engines finalize speech in segments; the text shown to the user
// is every finalized segment followed by the segment still in progress.
type segmentText struct {
	committed []string
	interim   string
}

// update applies one result and returns the full text so far.
func (s *segmentText) update(text string, segmentFinal bool) string {
	text = strings.TrimSpace(text)
	if segmentFinal {
		if text != "" {
			s.committed = append(s.committed, text)
		}
		s.interim = ""
	} else {
		s.interim = text
	}
	return s.String()
}

func (s *segmentText) String() string {
	parts := s.committed
	if s.interim != "" {
		parts = append(parts[:len(parts):len(parts)], s.interim)
	}
	return strings.Join(parts, " ")
}
