package utils

import "strings"

// Environment names understood by the service
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// NormalizeEnvironment maps the accepted APP_ENV spellings onto one of the known names
// prod or production → prod
// dev, development or staging → dev
// Any other value → local
func NormalizeEnvironment(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return EnvProd
	case "dev", "development", "staging":
		return EnvDev
	default:
		return EnvLocal
	}
}

// IsProduction reports whether env names the production environment
func IsProduction(env string) bool {
	return NormalizeEnvironment(env) == EnvProd
}
