// Package register drives the GitHub App manifest flow end to end: it serves
// the registration page, waits for GitHub's redirect, exchanges the one-time
// code for credentials and writes them to the env file.
package register
