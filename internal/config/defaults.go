package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Workspace:          "~/.toolpilot/workspace",
			LogLevel:           "info",
			MaxIterations:      10,
			ToolTimeoutSeconds: 60,
		},
		Provider: ProviderConfig{
			Name:           "claude",
			MaxTokens:      4096,
			TimeoutSeconds: 120,
		},
		Database: DatabaseConfig{
			Enabled:      true,
			Path:         "~/.toolpilot/data.db",
			ReadKeywords: []string{"SELECT", "WITH", "PRAGMA", "EXPLAIN"},
		},
		Tools: ToolsConfig{
			Files: FilesToolConfig{Enabled: true},
			Code: CodeToolConfig{
				Enabled:        true,
				TimeoutSeconds: 30,
				MaxOutputBytes: 65536,
			},
			Search: SearchToolConfig{
				Endpoint: "https://api.search.brave.com/res/v1/web/search",
			},
			Web: WebToolConfig{FetchEnabled: true},
			Weather: WeatherToolConfig{
				Enabled:  true,
				Endpoint: "https://wttr.in",
			},
			Sports: SportsToolConfig{
				Enabled:  true,
				Endpoint: "https://www.thesportsdb.com/api/v1/json",
			},
		},
		Transport: TransportConfig{
			Mode:   "local",
			Listen: "127.0.0.1:8765",
		},
		Audit: AuditConfig{
			Enabled: true,
			DBPath:  "~/.toolpilot/audit.db",
		},
	}
}
