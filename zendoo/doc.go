// Package zendoo is the Groth16 implementation of the sidechain proof
// oracle. It binds a certificate's epoch transition, its backward transfers
// and the sidechain constant into the public inputs of a BN254 circuit and
// answers consensus.ProofVerifier calls with a plain accept or reject.
//
// Everything received from the network is treated as untrusted: any
// decoding failure, malformed field element or panicking library call is
// reported as a rejection.
package zendoo
