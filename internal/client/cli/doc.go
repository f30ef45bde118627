// Package cli provides the keeper command-line client.
//
// It wires configuration, the local account store, the per-account
// database manager and the session and vault services, and exposes them
// as cobra commands. The shell command starts an interactive REPL that
// keeps one session alive across commands, so an unlocked account stays
// open until it is locked, switched or signed out.
//
// Typical flow:
//
//	keeper accounts add          register an account and sign in
//	keeper shell                 unlock, add and show secrets, lock
//	keeper accounts reconcile    repair partially stored accounts
package cli
