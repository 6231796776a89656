// Package manifest loads GitHub App manifests from disk and serializes them for
// the registration form, omitting every optional field that is not set.
package manifest
