package voice

import "errors"

var (
	// ErrConfigNotFound is returned when no voice config row exists for a tenant.
	ErrConfigNotFound = errors.New("voice config not found")

	// ErrConfigExists is returned by Create when the tenant already has a config.
	ErrConfigExists = errors.New("voice config already exists")

	// ErrTransferNumberRequired is returned when live_transfer mode is requested
	// without any transfer number configured or supplied.
	ErrTransferNumberRequired = errors.New("live_transfer mode requires a transfer number")

	// ErrInvalidHandoffMode is returned for an unrecognized handoff mode.
	ErrInvalidHandoffMode = errors.New("invalid handoff mode")

	// ErrInvalidEscalationRules is returned when rule thresholds are out of range.
	ErrInvalidEscalationRules = errors.New("invalid escalation rules")

	// ErrUnknownNotificationMethod is returned for notification methods outside
	// the valid set.
	ErrUnknownNotificationMethod = errors.New("unknown notification method")
)
