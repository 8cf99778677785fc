// Package config defines the format-agnostic workflow model that the rest of
// the engine operates on. Format-specific loaders (HCL, YAML) translate their
// source files into this model, so the graph builder and executor never see a
// parser type.
package config
