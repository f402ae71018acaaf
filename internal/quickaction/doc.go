// Package quickaction manages saved prompt templates that can be sent to the
// AI provider against the latest transcript without a new recording.
package quickaction
