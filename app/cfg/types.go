package cfg

type Cfg struct {
	// Storage
	DBPath string

	// Shared cache and broker
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Application configuration
	SettingsFile      string
	Port              string
	APIAccessKey      string
	WorkerCount       int
	SchedulerInterval int
	VendorName        string

	// Application metadata
	UserAgent   string
	HTTPTimeout int
	Timezone    string
	Debug       bool
	Version     string
}
