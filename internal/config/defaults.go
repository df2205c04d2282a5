package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			MaxConcurrentRequests: 5,
		},
		Line: LineConfig{
			Port:               8080,
			WebhookPath:        "/callback",
			ChannelSecret:      "${LINE_CHANNEL_SECRET}",
			ChannelAccessToken: "${LINE_CHANNEL_ACCESS_TOKEN}",
			SendTimeoutSeconds: 10,
		},
		Telegram: TelegramConfig{
			Enabled:            false,
			SendTimeoutSeconds: 10,
		},
		Document: DocumentConfig{
			ID:                  "${GROUNDING_DOCUMENT_ID}",
			AccessToken:         "${DRIVE_ACCESS_TOKEN}",
			FetchTimeoutSeconds: 30,
		},
		Cache: CacheConfig{
			RefreshIntervalMinutes: 0, // fetch once per cold start
		},
		Prompt: PromptConfig{
			MaxBytes: 30000,
		},
		Gemini: GeminiConfig{
			APIKey:         "${GEMINI_API_KEY}",
			Model:          "gemini-2.0-flash",
			MaxAttempts:    3,
			TimeoutSeconds: 60,
		},
		Audit: AuditConfig{
			Enabled: true,
			DBPath:  "~/.groundbot/audit.db",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9091,
		},
	}
}
