package cfg

type Cfg struct {
	// Database configuration
	DBPath string

	// Application configuration
	ConfigFile        string
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
