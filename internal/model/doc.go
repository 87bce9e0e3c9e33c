// Package model defines the records shared by the store, the sync engine and
// the App Store Connect client.
//
// Two kinds of tester submission are tracked:
//   - crash: a TestFlight crash report, whose artifact is the crash log text
//   - feedback: a TestFlight screenshot feedback, whose artifact is an image or video
//
// Both kinds share the same shape; they differ only in the artifact they carry.
// Remote payload fields are optional and modelled as pointers: an absent field
// is a normal case, never an error.
package model
