// Package storage defines the persistence interfaces for gmassist.
//
// The controller stores one display-state snapshot per GM profile and reads
// it back at startup so the player surface resumes where the previous
// session left off. Implementations live in subpackages (bbolt).
//
// # Error Types
//
//   - ErrNotFound: indicates a requested record is missing (first run).
package storage
