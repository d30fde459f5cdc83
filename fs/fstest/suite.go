// Package fstest provides a conformance suite for fs.Filesystem
// implementations. It exercises the operations the build and packaging
// stages depend on: staging files into a dist folder, renaming, walking
// and clearing it.
//
//	func TestMyFS(t *testing.T) {
//	    fstest.TestSuite(t, func(t *testing.T) (fs.Filesystem, string) {
//	        return myfs.New(), "/"
//	    })
//	}
package fstest

import (
	"testing"

	"github.com/iamd3vil/rlsr/fs"
)

// Factory returns a fresh, empty filesystem and the directory inside it
// the tests may write to.
type Factory func(t *testing.T) (fs.Filesystem, string)

// TestSuite runs every conformance test against filesystems from newFS.
// Each group gets its own filesystem.
func TestSuite(t *testing.T, newFS Factory) {
	TestSuiteWithSkip(t, newFS, nil)
}

// TestSuiteWithSkip is TestSuite skipping the named groups.
func TestSuiteWithSkip(t *testing.T, newFS Factory, skip []string) {
	groups := []struct {
		name string
		run  func(*testing.T, fs.Filesystem, string)
	}{
		{"ReadFS", TestReadFS},
		{"WriteFS", TestWriteFS},
		{"ManageFS", TestManageFS},
		{"WalkFS", TestWalkFS},
	}

	for _, g := range groups {
		t.Run(g.name, func(t *testing.T) {
			for _, s := range skip {
				if s == g.name {
					t.Skip("skipped by provider")
				}
			}
			fsys, root := newFS(t)
			g.run(t, fsys, root)
		})
	}
}
