// Package archive builds the tar files written by the Meta stage and by copy
// stages configured with tar_batch.
package archive
