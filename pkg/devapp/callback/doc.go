// Package callback runs the short-lived local HTTP server that GitHub redirects
// to after an app has been created from a manifest. The one-time code from the
// redirect is handed to the caller exactly once.
package callback
