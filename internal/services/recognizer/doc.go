// Package recognizer wraps the external race-number recognition service. The
// service is a black box that takes one image and returns detections with
// confidence scores; this client adds timeouts, bounded retry with backoff,
// and typed errors for the workflow's failure policy.
package recognizer
