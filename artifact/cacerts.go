package artifact

// CaCerts is the ordered sequence of CA certificates trusted by the
// registrar's domain (spec.md §3), returned from /wrappedcacerts.
type CaCerts struct {
	X5Bag RawCertChain `json:"x5bag" cbor:"x5bag"`
}
