// Package coderegion tracks which address ranges hold compiled guest code
// and which instructions inside them are declared to trap.
//
// Ranges never overlap. Registration and removal are serialized with guest
// execution by the caller: code is published before any call can reach it
// and unregistered only once nothing executes it.
package coderegion
