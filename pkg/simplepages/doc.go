// Package simplepages provides a reusable composition engine for page and
// page-type management with pluggable repository backends.
//
// It exposes a single Service interface that resolves a generic Page envelope
// by URL or id into a composition Proxy, creates new envelope/record pairs,
// and orchestrates the install/uninstall lifecycle of registered page types.
// Implementations of repositories (memory, Postgres, SQLite) are provided
// under subpackages.
//
// Composition Model
//
// Every addressable unit of content is one Page envelope bound one-to-one to
// a TypedRecord of a registered type. The Proxy presents both as a single
// logical object: member access resolves against the envelope's fixed member
// set first and delegates everything else to the typed record, which is
// fetched lazily and cached for the proxy's lifetime. Envelope members shadow
// same-named type fields, never the other way around.
package simplepages
