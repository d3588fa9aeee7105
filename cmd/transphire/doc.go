// Package main hosts the transphire CLI.
//
// The cobra command tree starts the pipeline in run or monitor mode, prints
// one-shot queue and history reports, runs the startup checks on demand, tails
// the project log and scaffolds a configuration file. All pipeline behaviour lives in
// internal/workflow; commands here only resolve configuration and render.
package main
