package config

// SourceConfig describes the XMLTV source the server mirrors
type SourceConfig struct {
	Feed     FeedInfo          `yaml:"feed"`
	Settings FeedSettings      `yaml:"settings"`
	Aliases  map[string]string `yaml:"aliases"`
}

// FeedInfo contains basic feed information
type FeedInfo struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// FeedSettings contains feed processing settings
type FeedSettings struct {
	RefreshInterval int `yaml:"refresh_interval"` // seconds
	Timeout         int `yaml:"timeout"`          // seconds
}
