// Package services holds cross-cutting service helpers: the error taxonomy
// shared by pipeline stages and backend clients, and context annotation for
// job and stage identifiers. Backend client implementations live in
// subpackages.
package services
