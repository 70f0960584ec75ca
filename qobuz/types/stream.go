package types

// StreamRestriction marks a nominally successful stream URL response as
// unusable for the requested format.
type StreamRestriction struct {
	Code string `json:"code"`
}

type StreamURL struct {
	URL          string              `json:"url"`
	FormatID     uint64              `json:"format_id"`
	MimeType     string              `json:"mime_type"`
	SamplingRate float64             `json:"sampling_rate"`
	BitDepth     *uint64             `json:"bit_depth"`
	TrackID      uint64              `json:"track_id"`
	Restrictions []StreamRestriction `json:"restrictions"`
}

func (s *StreamURL) IsRestricted() bool {
	return len(s.Restrictions) > 0
}
