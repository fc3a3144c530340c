package config

// Defaults returns the baseline memory limits and default cache/service
// entries applied when a project doesn't override them.
func Defaults() *Config {
	return &Config{
		TotalMemoryLimit:              4096,
		ServiceContainerDefaultMemory: 1024,
		BuildContainerMinimumMemory:   1024,
		CPULimits:                     false,
		DefaultImage:                  "atlassian/default-image:4",
		DefaultServices:               []string{"docker"},
		DefaultCaches: map[string]string{
			"composer":   "~/.composer/cache",
			"dotnetcore": "~/.nuget/packages",
			"gradle":     "~/.gradle/caches",
			"ivy2":       "~/.ivy2/cache",
			"maven":      "~/.m2/repository",
			"node":       "node_modules",
			"pip":        "~/.cache/pip",
			"sbt":        "~/.sbt",
		},
	}
}

// DefaultDockerServiceImage is the fallback image used when the "docker"
// service is implicitly required but not declared under
// definitions.services.
const DefaultDockerServiceImage = "docker:dind"
