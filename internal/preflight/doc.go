// Package preflight provides readiness checks for the filesystem roots and
// external programs transphire depends on.
//
// These checks run in two contexts:
//   - The workflow manager calls RunAll and CheckSystemDeps before spawning
//     any worker. A failed required check aborts the start with a
//     configuration error so no item is picked up by a doomed pipeline.
//   - The CLI "transphire check" command renders every result as a table.
//
// Copy targets are only checked when the stage writing to them is enabled.
package preflight
