// Package configuration provides loading facilities for fss configuration: the
// optional YAML server configuration file and the client's environment-based
// endpoint configuration.
package configuration
