package config

const (
	defaultStagingDir       = "~/.local/share/readcast/staging"
	defaultLogDir           = "~/.local/share/readcast/logs"
	defaultSourceBaseURL    = "https://readwise.io/api/v3"
	defaultSourceTimeout    = 30
	defaultGenerationLang   = "en"
	defaultGenTimeout       = 60
	defaultMinArtifactBytes = 100_000
	defaultMaxJobAge        = 3600
	defaultPublishRegion    = "auto"
	defaultPublishTimeout   = 120
	defaultFeedTitle        = "Readcast"
	defaultFeedDescription  = "Generated audio episodes from saved articles."
	defaultFeedLanguage     = "en"
	defaultFeedCategory     = "Technology"
	defaultFeedExplicit     = "no"
	defaultRunLimit         = 5
	defaultMaxAttempts      = 4
	defaultBackoffInitial   = 300
	defaultBackoffMax       = 7200
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Source: Source{
			BaseURL:        defaultSourceBaseURL,
			RequestTimeout: defaultSourceTimeout,
		},
		Generation: Generation{
			Language:         defaultGenerationLang,
			RequestTimeout:   defaultGenTimeout,
			MinArtifactBytes: defaultMinArtifactBytes,
			MaxJobAgeSeconds: defaultMaxJobAge,
		},
		Publish: Publish{
			Region:         defaultPublishRegion,
			RequestTimeout: defaultPublishTimeout,
		},
		Feed: Feed{
			Title:       defaultFeedTitle,
			Description: defaultFeedDescription,
			Language:    defaultFeedLanguage,
			Category:    defaultFeedCategory,
			Explicit:    defaultFeedExplicit,
		},
		Pipeline: Pipeline{
			RunLimit:              defaultRunLimit,
			MaxAttempts:           defaultMaxAttempts,
			BackoffInitialSeconds: defaultBackoffInitial,
			BackoffMaxSeconds:     defaultBackoffMax,
		},
		Logging: Logging{
			Level: defaultLogLevel,
		},
	}
}
