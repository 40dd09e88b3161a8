// Package config loads, normalizes, and validates chatbatch configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the CHATBATCH_API_KEY and
// OPENAI_API_KEY environment fallbacks. Output settings inherit the input
// type and format when left blank, and the judge verifier reuses the [api]
// connection unless a separate model is named.
package config
