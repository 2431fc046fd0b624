// Package main provides the entry point for the apivet CLI.
//
// apivet verifies that a deployed REST backend matches its declared
// surface: it probes endpoints, classifies them as accessible or
// missing, checks concurrent request handling, and inspects database
// state.
//
// Usage:
//
//	apivet probe [suite-name...]
//	apivet compare [suite-name]
//	apivet dbcheck [suite-name]
//
// See --help for all available options.
package main

// main is the entry point for apivet.
func main() {
	Execute()
}
