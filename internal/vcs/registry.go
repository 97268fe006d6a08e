package vcs

import (
	"fmt"
	"sync"
)

// VCSConstructor opens a VCS for a path inside a repository.
// Implementations register themselves with the registry using Register().
type VCSConstructor func(path string) (VCS, error)

// registry maps VCS types to their constructors
var (
	registry      = make(map[Type]VCSConstructor)
	registryMutex sync.RWMutex
)

// Register registers a VCS implementation constructor.
// This is called from init() functions in implementation packages.
//
// Example:
//
//	func init() {
//	    vcs.Register(vcs.TypeGit, func(path string) (vcs.VCS, error) { return New(path) })
//	}
func Register(t Type, constructor VCSConstructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("vcs: Register constructor is nil for type %s", t))
	}

	if _, exists := registry[t]; exists {
		panic(fmt.Sprintf("vcs: Register called twice for type %s", t))
	}

	registry[t] = constructor
}

// Open opens the repository containing path with the backend of type t.
func Open(t Type, path string) (VCS, error) {
	registryMutex.RLock()
	constructor := registry[t]
	registryMutex.RUnlock()

	if constructor == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, t)
	}
	return constructor(path)
}
