// Package model provides the domain types shared by every dirsync package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import model; model imports nothing internal. This keeps
// the item, relationship, correction and workflow vocabulary at the bottom of
// the dependency graph.
//
// Key design constraints:
//   - Metadata values are compared after NFC normalization
//   - Logical sequence numbers only, never wall-clock timestamps
//   - All JSON tags use snake_case
package model
