package domain

// SafetyStatus is derived by the status engine only. The zero value means
// no status has been derived yet.
type SafetyStatus string

const (
	StatusSafe    SafetyStatus = "SAFE"
	StatusWarning SafetyStatus = "WARNING"
	StatusDanger  SafetyStatus = "DANGER"
)

func (s SafetyStatus) Rank() int {
	switch s {
	case StatusSafe:
		return 1
	case StatusWarning:
		return 2
	case StatusDanger:
		return 3
	}
	return 0
}

func (s SafetyStatus) Valid() bool {
	return s.Rank() > 0
}

// MaxStatus returns the more severe of a and b.
func MaxStatus(a, b SafetyStatus) SafetyStatus {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
