// Package random provides the secure, insecure and insecure-seed random
// sources.
//
// Secure bytes come from crypto/rand. Insecure bytes come from the runtime
// seeded math/rand/v2 generator and must not be used for key material.
// Byte requests are capped at MaxBytes; callers asking for more get a
// shorter slice and ask again.
package random
