// Package config holds the runtime configuration for apivet.
//
// Configuration comes from three places, in increasing specificity:
// the built-in defaults, the YAML suite file (.apivet.yaml), and CLI
// flags. Credentials are never stored in the suite file; the file names
// environment variables and the values are read from the environment,
// optionally populated from a .env file.
package config
