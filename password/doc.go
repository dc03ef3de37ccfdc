// Package password implements one-way password hashing and constant-time
// verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and derived key are unpadded standard base64. [Argon2.NeedsUpgrade]
// reports hashes produced with weaker parameters so the caller can re-hash on
// the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other branchauth package.
//   - Log plaintext passwords.
package password
