package service

import "time"

// TableStatus is the API shape of one registered table's lifecycle state.
type TableStatus struct {
	// Name is the registry key; declarative tables use their qualified
	// "<namespace>.<name>" form
	Name string `json:"name"`

	// Kind is "source" or "declarative"
	Kind string `json:"kind"`

	// Origin is the definition source the table was loaded from, empty
	// for declarative tables
	Origin string `json:"origin,omitempty"`

	// Loaded reports whether a usable version is currently installed
	Loaded bool `json:"loaded"`

	// LastError is the most recent load failure, if any
	LastError string `json:"lastError,omitempty"`

	// NextUpdate is the scheduled refresh time, if refresh applies
	NextUpdate *time.Time `json:"nextUpdate,omitempty"`

	// RetryCount is the number of consecutive failed load attempts
	RetryCount int `json:"retryCount,omitempty"`

	// NextAttempt is when the next retry is due, if the table is failed
	NextAttempt *time.Time `json:"nextAttempt,omitempty"`
}

// TableDetail extends TableStatus with data-level fields available when a
// usable version is installed.
type TableDetail struct {
	TableStatus

	// KeyColumn is the attribute used as lookup key
	KeyColumn string `json:"keyColumn,omitempty"`

	// Rows is the number of rows in the current version
	Rows int `json:"rows"`

	// LoadedAt is when the current version was built
	LoadedAt *time.Time `json:"loadedAt,omitempty"`
}
