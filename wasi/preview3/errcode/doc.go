// Package errcode is the single error taxonomy shared by every shim resource.
//
// Host failures are described as a HostError (symbolic errno name and/or
// numeric platform code) inside execution contexts, then mapped to a Code
// on the caller side:
//
//	code := errcode.Network(h)           // unmapped -> Unknown
//	code, ok := errcode.Filesystem(h)    // unmapped -> ok == false
//
// Code values implement error and stringify to the portable vocabulary
// ("address-in-use", "no-entry", ...).
package errcode
