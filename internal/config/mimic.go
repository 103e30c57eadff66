package config

// MimicConfig holds settings for the local cloud simulator daemon.
type MimicConfig struct {
	ListenAddr  string
	DBPath      string
	StoragePath string

	// BaseURL is the externally reachable root the simulator advertises
	// in the service catalog entries it publishes.
	BaseURL string

	// Region stamped on every published catalog endpoint.
	Region string

	// BuildDelaySeconds is how long a freshly created server stays in
	// BUILD before the simulator flips it to ACTIVE. Zero means the
	// transition happens on the next read.
	BuildDelaySeconds int
}

// LoadMimic builds a MimicConfig from the process environment.
func LoadMimic() *MimicConfig {
	return &MimicConfig{
		ListenAddr:        getEnv("MIMIC_LISTEN_ADDR", ":8900"),
		DBPath:            getEnv("MIMIC_DB_PATH", "/data/db/mimic.db"),
		StoragePath:       getEnv("MIMIC_STORAGE_PATH", "/data/personality"),
		BaseURL:           getEnv("MIMIC_BASE_URL", "http://localhost:8900"),
		Region:            getEnv("MIMIC_REGION", "ORD"),
		BuildDelaySeconds: getEnvInt("MIMIC_BUILD_DELAY_SECONDS", 0),
	}
}
