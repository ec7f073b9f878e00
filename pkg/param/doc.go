// Package param provides the typed application settings tree.
//
// A Registry holds ordered top-level Groups; a Group holds ordered Parameters
// and nested Groups. Each Parameter is bound to storage owned by the
// application, so reading a setting is just reading the bound variable.
//
// The tree has three external forms:
//
//   - Schema: a JSON-ready description of every group and parameter, in
//     declaration order, used by the configuration UI.
//   - Document: the current values keyed by group and parameter name.
//     Write-only parameters are never included.
//   - Blob: a fixed-size binary image of every value (write-only included)
//     stored in the settings field of the persistent record.
//
// The tree is not safe for concurrent use. It is driven from the provisioning
// loop goroutine.
package param
