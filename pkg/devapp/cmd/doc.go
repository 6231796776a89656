// Package cmd implements the cobra command tree for the github-dev-app CLI:
// registering an app from a manifest, printing manifests, configuration,
// version and shell completion.
package cmd
