// Package intent defines the cross-domain intent data model consumed by the
// destination-side settlement engine: the funding asset, the ordered call
// batch, the domain scope, and the origin-signed authorization material. It
// also owns the canonical wire codec and the deterministic derivation of
// intent identifiers, which every settlement component must agree on.
package intent
