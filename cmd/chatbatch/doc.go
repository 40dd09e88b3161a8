// Package main hosts the chatbatch CLI entrypoint and command graph.
//
// The Cobra-based command tree loads configuration, runs a batch of chat
// requests through the pipeline, checks that the dataset, output location and
// APIs are usable, and summarizes result files. It centralizes configuration
// resolution and logger setup so subcommands can focus on user experience
// instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
