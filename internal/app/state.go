package app

// AppState represents the phase shown by the progress view.
type AppState int

const (
	Starting AppState = iota
	Ingesting
	Resolving
	Delivering
	Pausing
	Finished
	ShowError
)

func (s AppState) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Ingesting:
		return "Retrieving bundles"
	case Resolving:
		return "Resolving bundle"
	case Delivering:
		return "Sending reports"
	case Pausing:
		return "Pausing"
	case Finished:
		return "Finished"
	case ShowError:
		return "Failed"
	}
	return "Unknown"
}
