package migrate

import (
	"strings"
	"time"
)

const (
	modeConfigurationKeyConstant                = "mode"
	defaultOldPDSURLConfigurationKeyConstant    = "default_old_pds_url"
	userAgentConfigurationKeyConstant           = "user_agent"
	requestTimeoutConfigurationKeyConstant      = "request_timeout"
	interactiveLogLevelConfigurationKeyConstant = "interactive_log_level"
	configurationKeySeparatorConstant           = "."
	defaultOldPDSURLConstant                    = "https://bsky.social"
	defaultUserAgentConstant                    = "pdsmigrate"
	defaultRequestTimeoutConstant               = 10 * time.Minute
	defaultInteractiveLogLevelConstant          = "warn"
)

// CommandConfiguration captures persisted configuration for the migrate command.
type CommandConfiguration struct {
	Mode                string        `mapstructure:"mode"`
	DefaultOldPDSURL    string        `mapstructure:"default_old_pds_url"`
	UserAgent           string        `mapstructure:"user_agent"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	// InteractiveLogLevel is the lowest level logged while prompts share the terminal.
	InteractiveLogLevel string        `mapstructure:"interactive_log_level"`
}

// DefaultCommandConfiguration returns baseline configuration values for the migrate command.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		Mode:                string(ModeInteractive),
		DefaultOldPDSURL:    defaultOldPDSURLConstant,
		UserAgent:           defaultUserAgentConstant,
		RequestTimeout:      defaultRequestTimeoutConstant,
		InteractiveLogLevel: defaultInteractiveLogLevelConstant,
	}
}

// DefaultConfigurationValues exposes the defaults keyed under configurationPrefix for the configuration loader.
func DefaultConfigurationValues(configurationPrefix string) map[string]any {
	defaults := DefaultCommandConfiguration()
	qualify := func(key string) string {
		if len(configurationPrefix) == 0 {
			return key
		}
		return configurationPrefix + configurationKeySeparatorConstant + key
	}
	return map[string]any{
		qualify(modeConfigurationKeyConstant):                defaults.Mode,
		qualify(defaultOldPDSURLConfigurationKeyConstant):    defaults.DefaultOldPDSURL,
		qualify(userAgentConfigurationKeyConstant):           defaults.UserAgent,
		qualify(requestTimeoutConfigurationKeyConstant):      defaults.RequestTimeout.String(),
		qualify(interactiveLogLevelConfigurationKeyConstant): defaults.InteractiveLogLevel,
	}
}

// Sanitize trims configured values and restores defaults for blank entries.
// A negative request timeout disables the limit like a zero one.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration

	sanitized.Mode = strings.TrimSpace(configuration.Mode)
	if len(sanitized.Mode) == 0 {
		sanitized.Mode = defaults.Mode
	}

	sanitized.DefaultOldPDSURL = strings.TrimSpace(configuration.DefaultOldPDSURL)
	if len(sanitized.DefaultOldPDSURL) == 0 {
		sanitized.DefaultOldPDSURL = defaults.DefaultOldPDSURL
	}

	sanitized.UserAgent = strings.TrimSpace(configuration.UserAgent)
	if len(sanitized.UserAgent) == 0 {
		sanitized.UserAgent = defaults.UserAgent
	}

	sanitized.InteractiveLogLevel = strings.ToLower(strings.TrimSpace(configuration.InteractiveLogLevel))
	if len(sanitized.InteractiveLogLevel) == 0 {
		sanitized.InteractiveLogLevel = defaults.InteractiveLogLevel
	}

	if sanitized.RequestTimeout < 0 {
		sanitized.RequestTimeout = 0
	}
	return sanitized
}
