// Package envfile writes GitHub App credentials into a dotenv file. Lines for
// the managed GITHUB_* keys are replaced and appended in a fixed order; every
// other line is kept as it was.
package envfile
