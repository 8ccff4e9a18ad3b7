package config

import "sona-transcriber/internal/domain"

// DefaultMaxConcurrent bounds simultaneous transcription jobs out of the box.
const DefaultMaxConcurrent = 2

// DefaultSettings returns baseline configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		MaxConcurrent: DefaultMaxConcurrent,
		Language:      "auto",
	}
}

// Normalize trims user inputs and fills missing keys with defaults.
//
// The ordered ITNRulesOrder list is authoritative for inverse text
// normalization; EnableITN is kept coherent as a derived convenience
// flag and EnabledITNModels is retained only for configs written by
// older builds that never stored an order.
func Normalize(settings domain.Settings) domain.Settings {
	if settings.MaxConcurrent < 1 {
		settings.MaxConcurrent = DefaultMaxConcurrent
	}
	if settings.Language == "" {
		settings.Language = "auto"
	}
	if len(settings.ITNRulesOrder) == 0 && len(settings.EnabledITNModels) > 0 {
		settings.ITNRulesOrder = append([]string(nil), settings.EnabledITNModels...)
	}
	settings.EnableITN = settings.EnableITN && len(settings.ITNRulesOrder) > 0
	return settings
}

// ActiveITNRules returns the ordered rule ids ITN should apply, or nil
// when inverse text normalization is disabled.
func ActiveITNRules(settings domain.Settings) []string {
	if !settings.EnableITN {
		return nil
	}
	return append([]string(nil), settings.ITNRulesOrder...)
}
