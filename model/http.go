package model

type SeekRequestBody struct {
	TimeMs SessionTimeMs `json:"timeMs"`
}

type TempoRequestBody struct {
	Tempo float64 `json:"tempo"`
}

type StreamMessage struct {
	Type     string          `json:"type"`
	State    *SessionState   `json:"state,omitempty"`
	Judgment *JudgmentResult `json:"judgment,omitempty"`
	Beat     *BeatEvent      `json:"beat,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"detail"`
}

type LoadRequestBody struct {
	// a chart file path or dynamo:<id>
	Chart string `json:"chart"`
}

type GateRequestBody struct {
	Enabled bool `json:"enabled"`
}

type ChartListResponse struct {
	Charts []string `json:"charts"`
}
