// Package config loads, normalizes, and validates transphire configuration.
//
// It supplies repository defaults (including the default pipeline topology),
// expands user paths (including tilde shortcuts), reads TOML files, loads an
// optional .env file, and honours environment fallbacks for secrets such as
// TRANSPHIRE_SUDO_PASSWORD. The Config type centralizes every knob the
// pipeline and CLI need: storage roots, the routing settings mapping, stage
// topology, external tool templates, health thresholds and notification
// credentials.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, a validated topology, and clear validation errors.
package config
