// Command bibtag identifies race numbers in sports event photos: it decodes
// previews, calls the recognition service, corrects low-confidence numbers
// from capture-time neighbors, reconciles against the participant roster,
// and writes the result into image metadata. Runs are durable and resumable.
package main
