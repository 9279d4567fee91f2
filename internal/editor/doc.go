// Package editor provides the operations behind the CSV editor page.
//
// It sits between the web layer and the table model, independent of HTTP so
// it can be driven from handlers or tests alike.
//
// # Operations
//
// Every operation works on one [session.Session]:
//
//   - [Service.LoadFile] is the file intake path. It decodes one uploaded file
//     and, only if decoding succeeds, replaces the session's table with it.
//     A failed load leaves whatever was loaded before untouched.
//   - [Service.SetCell], [Service.AddRow] and [Service.DeleteRow] apply a
//     single edit to the loaded table.
//   - [Service.Export] encodes the current table, headers first, and names
//     the download "edited_" + the source filename.
//
// # Intake Limits
//
// Decoding reads the whole file into memory, so concurrent loads across all
// sessions are bounded by an [IntakeLimiter] and each file by a byte cap.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]. Codes:
//
//   - FILE001, FILE002, FILE004, FILE005: file intake (size, format, no file,
//     empty)
//   - EDT001-EDT003: edits addressing rows or columns that do not exist
//   - UPL002, UPL004, UPL005: intake busy, cancelled, timed out
//   - SES001: session missing or expired
//   - RATE001: rate limited
package editor
