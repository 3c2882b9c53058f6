package domain

import "errors"

var (
	ErrOutOfOrder            = errors.New("sample timestamp precedes last stored sample")
	ErrUnknownEntity         = errors.New("unknown entity")
	ErrNoData                = errors.New("entity has no telemetry")
	ErrInvalidDispatchTarget = errors.New("invalid dispatch target")
	ErrInvalidSample         = errors.New("invalid sample")
	ErrInvalidZone           = errors.New("invalid geofence zone")
	ErrInvalidExport         = errors.New("invalid export request")
	ErrDuplicateEntity       = errors.New("entity already enrolled")
	ErrUnknownContact        = errors.New("unknown contact")
	ErrActiveAlerts          = errors.New("entity has active alerts")
	ErrNotResolvable         = errors.New("alert kind cannot be resolved externally")
	ErrInvalidManualAlert    = errors.New("invalid manual alert")
	ErrInvalidEntity         = errors.New("invalid entity")
)
