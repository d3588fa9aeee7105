// Package discovery finds completed acquisitions in the search path.
//
// An acquisition is complete when its marker file (the microscope's XML
// metadata by default) exists next to the expected number of non-empty frame
// files. Finder returns new acquisitions ordered by the timestamp the
// microscope embeds in the file name. Watcher wakes the Find stage early when
// the search path changes.
package discovery
