package config

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// IsProductionLike reports whether env requires production-grade settings.
func IsProductionLike(env string) bool {
	return env == EnvStaging || env == EnvProduction
}
