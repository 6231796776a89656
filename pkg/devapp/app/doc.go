// Package app holds the credentials GitHub issues for a newly registered
// GitHub App.
package app
