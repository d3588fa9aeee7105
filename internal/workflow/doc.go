// Package workflow runs the pipeline: one bounded pool of workers per stage,
// each pulling root names from its stage queue, running the stage action and
// routing outputs downstream.
//
// The Manager validates the topology and environment, builds a
// PipelineContext (queues, shared stage state, the share set, GPU pools, the
// global stop flag and the event bus), spawns the configured number of
// workers per stage and translates their events into Sink calls, project log
// files, notifications, history rows and metrics. Workers never talk to the
// operator directly; they publish Events and the dispatcher is the only
// consumer.
//
// Every worker iteration runs the health checks in a fixed order (quota,
// connection, disk full, unknown-error cooldown) before dispatching, and
// every sleep goes through a Clock in chunks so a stop request is observed
// within one chunk. Monitor mode never spawns workers; it only reads mirror
// line counts.
package workflow
