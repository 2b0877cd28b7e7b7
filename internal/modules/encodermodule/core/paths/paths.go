// Package paths resolves job asset locations on the worker's filesystem.
package paths

import "path/filepath"

// Resolver joins a folder and an asset name into a full path.
type Resolver interface {
	Join(folder, asset string) string
}

// FilepathResolver joins with the host path separator.
type FilepathResolver struct{}

// Join implements Resolver
func (FilepathResolver) Join(folder, asset string) string {
	return filepath.Join(folder, asset)
}

// Default returns the resolver used when none is configured.
func Default() Resolver {
	return FilepathResolver{}
}

// BaseResolver anchors relative folders under a root directory. Absolute
// folders are used as given.
type BaseResolver struct {
	Root string
}

// Join implements Resolver
func (r BaseResolver) Join(folder, asset string) string {
	if r.Root == "" || filepath.IsAbs(folder) {
		return filepath.Join(folder, asset)
	}
	return filepath.Join(r.Root, folder, asset)
}
