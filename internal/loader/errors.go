package loader

import "errors"

var (
	// ErrNotFound is returned when a name is not registered in either
	// partition.
	ErrNotFound = errors.New("table not found")

	// ErrAlreadyExists is returned when a registration collides with a
	// name already present in either partition.
	ErrAlreadyExists = errors.New("table already exists")

	// ErrNotLoaded is returned when an entry has no usable version and no
	// recorded load error. This should not happen and indicates an
	// internal bookkeeping fault.
	ErrNotLoaded = errors.New("table registered but never loaded")
)
