package observability

import (
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
)

// secretConfigKeys are the remote-configuration keys never logged in clear
var secretConfigKeys = map[string]bool{
	models.ConfigPassword:     true,
	models.ConfigClientSecret: true,
}

// Logger returns the global safe logger instance
func Logger() *logging.SafeLogger {
	return logging.Logger
}

// MaskSecret masks a credential for logging, keeping at most the first two characters
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	default:
		return s[:2] + "****"
	}
}

// MaskComponentConfig returns a copy of a remote configuration with its credentials masked
func MaskComponentConfig(cfg map[string]string) map[string]string {
	if cfg == nil {
		return nil
	}
	masked := make(map[string]string, len(cfg))
	for k, v := range cfg {
		if secretConfigKeys[k] {
			v = MaskSecret(v)
		}
		masked[k] = v
	}
	return masked
}
