// Package vybiumzkexec runs guest programs inside an isolated execution engine
// and turns normal runs into receipts that anyone holding the program identity
// and the prover's public key can check.
//
// The shipped guest verifies an Ed25519 signature: its input is a public key,
// a message and a signature, and its journal commits the key and the message.
// A second guest measures Edwards25519 field, scalar and group arithmetic with
// the two-pass measurement protocol.
//
// # Quick Start
//
// Proving that a signature verifies:
//
//	host, err := vybiumzkexec.NewHost(ctx, vybiumzkexec.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer host.Close(ctx)
//
//	session, receipt, err := host.ProveEd25519Verification(ctx, pub, msg, sig)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := host.Verify(receipt, host.Ed25519VerifyID()); err != nil {
//		log.Fatal(err)
//	}
//
// # Lifecycle
//
// Each run moves through a single-shot state machine:
//
//	New -> Encoded -> Executing -> Proved -> Verified
//	                            \-> GuestFailed
//	                            \-> EngineFailed
//	                       Proved -> VerificationFailed
//
// Illegal transitions fail with ErrInvalidState and no state is entered twice.
//
// # Errors
//
// All errors returned by this package are *Error values. A malformed input
// surfaces as ErrGuestFailure whose cause is ErrMalformedInput, so IsCode
// matches both. Budget violations surface as ErrEngineFailure caused by
// ErrResourceExhausted.
package vybiumzkexec
