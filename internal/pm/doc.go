// Package pm provides the presentation-model data types shared by both sides
// of a synchronization session.
//
// This package contains the wire-level vocabulary only. All other internal
// packages import pm; pm imports nothing internal.
//
// Key design constraints:
//   - Attribute values are wire-safe scalars: Null, String, Int, Float, Bool
//   - Null is an explicit value, distinct from "attribute absent"
//   - Bean references travel as the referenced model id (a String)
//   - Commands are encoded as canonical JSON (sorted keys, NFC strings)
package pm
