// Package services defines the shared error taxonomy and context plumbing
// used by pipeline stages and the external-tool wrappers beneath it.
package services
