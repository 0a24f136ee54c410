// Package config provides configuration management for the dispatch
// service. Configuration is loaded from a YAML file and validated before
// use. A file watcher reloads the configuration on change so the route
// table can be swapped without a restart.
package config
