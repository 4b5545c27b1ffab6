package model

// ChartMetadata is the catalogue entry stored next to a chart snapshot.
type ChartMetadata struct {
	Title    string  `json:"title"`
	Composer string  `json:"composer,omitempty"`
	Year     uint    `json:"year,omitempty"`
	Tempo    float64 `json:"tempo"`
}
