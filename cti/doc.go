// Package cti models and corrects Charge Transfer Inefficiency in a CCD
// image sensor.
//
// # Reading Guide
//
// Start with these files to understand the clocking engine:
//   - traps.go: trap species value types and their release/capture kinetics
//   - ccd.go: the well-fill model mapping free electrons to cloud volume
//   - roe.go: the readout-electronics schedule and express matrix
//   - watermarks.go: the per-column trap occupancy table
//   - trap_manager.go: release and capture exchanges against the watermarks
//   - clocker.go: drives one column through the ROE schedule
//   - cti.go: composes parallel/serial clocking and iterative removal
//
// # Architecture
//
// A column is clocked by walking its pixels under a ROE schedule; at every
// transfer the TrapManager exchanges electrons between the free-electron
// cloud and the traps recorded in its watermark table. The Orchestrator
// (AddCTI/RemoveCTI in cti.go) composes this per-column clocking across a
// full 2-D image, in the parallel direction, the serial direction (via an
// explicit transpose), or both.
//
// # Key Interfaces
//
// The one extension point is TrapSpecies: each concrete species (instant
// capture, slow capture, and their continuum log-normal variants) supplies
// fill/release kinetics; the TrapManager copies the species set once per
// ClockDirection call and checks each species' optional slow-capture and
// continuum capabilities with type assertions inside its per-row loops.
package cti
