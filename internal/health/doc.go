// Package health answers the questions stage workers ask before every
// dispatch: is the filesystem under a root over its quota, is a copy target
// still mounted, and has a block device disappeared.
package health
