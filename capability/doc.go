// Package capability defines the permission objects plugins are granted.
//
// A capability names a protected resource and a set of actions on it. The
// two registries of the host each define a small fixed action vocabulary:
//
//	module-registry:  read, register, manage
//	service-registry: access, start-or-stop
//
// Actions are stored as a bit mask, so capability A implies capability B
// exactly when both name the same resource and every bit of B is set in A.
// Capabilities over different resources never imply one another, with the
// single exception of All, which implies everything.
//
// File capabilities protect a path or a path subtree ("dir/-") with the
// read, write and delete actions. Every plugin receives one for its own data
// directory.
//
// Capabilities are immutable values; Set is a fixed collection consulted by
// the policy decision point.
package capability
