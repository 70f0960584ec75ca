package types

type SearchPage[T any] struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
	Items  []T `json:"items"`
}

type Album struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Artist      Artist             `json:"artist"`
	TracksCount int                `json:"tracks_count"`
	ReleaseDate string             `json:"release_date_original"`
	Tracks      *SearchPage[Track] `json:"tracks"`
}

type Track struct {
	ID                  uint64  `json:"id"`
	Title               string  `json:"title"`
	ISRC                string  `json:"isrc"`
	Duration            int     `json:"duration"`
	TrackNumber         int     `json:"track_number"`
	MaximumBitDepth     int     `json:"maximum_bit_depth"`
	MaximumSamplingRate float64 `json:"maximum_sampling_rate"`
	Performer           struct {
		Name string `json:"name"`
	} `json:"performer"`
	Album *Album `json:"album"`
}

type Artist struct {
	ID          uint64             `json:"id"`
	Name        string             `json:"name"`
	AlbumsCount int                `json:"albums_count"`
	Albums      *SearchPage[Album] `json:"albums"`
}

type Playlist struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	TracksCount int    `json:"tracks_count"`
	Owner       struct {
		Name string `json:"name"`
	} `json:"owner"`
	Tracks *SearchPage[Track] `json:"tracks"`
}
