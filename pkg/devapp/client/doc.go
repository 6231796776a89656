// Package client exchanges the one-time code from GitHub's manifest flow for
// the new app's credentials.
package client
