package types

import (
	"fmt"
)

// Quality is a Qobuz audio format identifier as used by the streaming
// endpoint's format_id parameter.
type Quality uint64

const (
	QualityMP3320      Quality = 5
	QualityFLAC        Quality = 6
	QualityFLACHiRes96 Quality = 7
	QualityFLACHiRes   Quality = 27
)

// FallbackOrder lists qualities from highest to lowest fidelity. Stream URL
// requests walk this list from the preferred quality downwards.
func FallbackOrder() []Quality {
	return []Quality{QualityFLACHiRes, QualityFLACHiRes96, QualityFLAC, QualityMP3320}
}

func (q Quality) ID() uint64 {
	return uint64(q)
}

func (q Quality) String() string {
	switch q {
	case QualityMP3320:
		return "MP3 320"
	case QualityFLAC:
		return "FLAC 16/44.1"
	case QualityFLACHiRes96:
		return "FLAC 24/96"
	case QualityFLACHiRes:
		return "FLAC 24/192"
	default:
		return fmt.Sprintf("format %d", uint64(q))
	}
}

func QualityFromID(id uint64) (Quality, error) {
	switch q := Quality(id); q {
	case QualityMP3320, QualityFLAC, QualityFLACHiRes96, QualityFLACHiRes:
		return q, nil
	default:
		return 0, fmt.Errorf("unknown quality format id: %d", id)
	}
}
