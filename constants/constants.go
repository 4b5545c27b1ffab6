package constants

import "os"

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func GetChartDir() string {
	return getEnv("CHART_PATH", "./charts")
}

// GetConfigPath returns "" when no config file is configured.
func GetConfigPath() string {
	return os.Getenv("HARMONDRILL_CONFIG")
}

func GetDynamoEndpoint() string {
	return getEnv("DYNAMO_ENDPOINT", "http://localhost:8000")
}

func GetDynamoRegion() string {
	return getEnv("DYNAMO_REGION", "localhost")
}

func GetChartTable() string {
	return getEnv("CHART_TABLE", "harmondrill-charts")
}

// 2 microbeats to every beat
const MicrobeatsPerBeat = 2

const MsPerMinute = 60_000

// MsPerMicrobeat is the length of one microbeat at tempo (beats per minute).
func MsPerMicrobeat(tempo float64) float64 {
	return MsPerMinute / (tempo * MicrobeatsPerBeat)
}
