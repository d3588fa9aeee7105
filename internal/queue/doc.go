// Package queue implements the durable per-stage work queues.
//
// Each stage owns an in-memory FIFO of root names mirrored to plain-text
// files under the queue directory:
//
//	Queue_<stage>        pending root names, one per line
//	Queue_<stage>_done   completed root names, append-only
//	Queue_<stage>_list   tar batch membership for archiving stages
//	Queue_<stage>_error  timestamped failure entries
//	Queue_<stage>.lock   advisory lock held while a mirror is mutated
//
// Open rebuilds the FIFO from the mirrors (pending minus done, in file
// order), so a crash at any point loses no pending work. Mirror mutations
// hold both the queue mutex and the file lock; monitor processes read the
// mirrors under a shared lock.
package queue
