// Package recoverykey generates the secp256k1 recovery key that is prepended
// to an account's rotation keys during identity migration.
package recoverykey
