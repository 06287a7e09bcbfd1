package config

import "time"

// Config stores environment configuration for Wayfarer.
type Config struct {
	Port string

	AssistantAPIURL string
	AssistantAPIKey string
	AssistantID     string

	TourvisorBaseURL  string
	TourvisorLogin    string
	TourvisorPassword string

	HTTPTimeout       time.Duration
	PollInterval      time.Duration
	MaxPollAttempts   int
	RetryMaxAttempts  int
	RetryBaseDelay    time.Duration
	SearchResultLimit int
	KeepAliveInterval time.Duration
}

// LoadConfig loads the Wayfarer configuration from environment variables.
// Provider credentials are mandatory; a missing one aborts startup.
func LoadConfig() Config {
	return Config{
		Port: GetEnv("PORT", "10000"),

		AssistantAPIURL: GetEnv("ASSISTANT_API_URL", "https://api.openai.com"),
		AssistantAPIKey: RequireEnv("ASSISTANT_API_KEY"),
		AssistantID:     RequireEnv("ASSISTANT_ID"),

		TourvisorBaseURL:  GetEnv("TOURVISOR_BASE_URL", "http://tourvisor.ru"),
		TourvisorLogin:    RequireEnv("TOURVISOR_LOGIN"),
		TourvisorPassword: RequireEnv("TOURVISOR_PASS"),

		HTTPTimeout:       GetEnvDuration("HTTP_TIMEOUT", 15*time.Second),
		PollInterval:      GetEnvDuration("SEARCH_POLL_INTERVAL", 2*time.Second),
		MaxPollAttempts:   GetEnvInt("SEARCH_MAX_POLL_ATTEMPTS", 6),
		RetryMaxAttempts:  GetEnvInt("HTTP_RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:    GetEnvDuration("HTTP_RETRY_BASE_DELAY", 500*time.Millisecond),
		SearchResultLimit: GetEnvInt("SEARCH_RESULT_LIMIT", 3),
		KeepAliveInterval: GetEnvDuration("SSE_KEEPALIVE_INTERVAL", 15*time.Second),
	}
}
