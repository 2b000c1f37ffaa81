package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateSettings checks the loaded configuration for values that would make
// the application misbehave at runtime.
func ValidateSettings(settings *Settings) error {
	var errs []string

	switch settings.Gateway.Inference.Provider {
	case InferenceProviderMock, InferenceProviderRemote:
	default:
		errs = append(errs, fmt.Sprintf("gateway.inference.provider must be %q or %q, got %q",
			InferenceProviderMock, InferenceProviderRemote, settings.Gateway.Inference.Provider))
	}

	if settings.Gateway.APIURL == "" {
		errs = append(errs, "gateway.apiurl must not be empty")
	} else if u, err := url.Parse(settings.Gateway.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("gateway.apiurl is not a valid absolute URL: %q", settings.Gateway.APIURL))
	}

	if settings.Gateway.TimeoutSeconds <= 0 {
		errs = append(errs, "gateway.timeoutseconds must be positive")
	}

	switch strings.ToLower(settings.Main.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("main.loglevel is not a known level: %q", settings.Main.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
