package artifact

// PledgeInfo ("pi") is returned from GET /.well-known/brski/pi and
// tells the registrar-agent which voucher and token encodings this
// pledge supports, so the remainder of the exchange can be negotiated
// up front (spec.md §4.5 "Content-type negotiation").
type PledgeInfo struct {
	DataInterchangeFormat string   `json:"data-interchange-format" cbor:"data-interchange-format"`
	SupportedVoucherType  []string `json:"supported-voucher-type" cbor:"supported-voucher-type"`
	SupportedTokenType    []string `json:"supported-token-type" cbor:"supported-token-type"`
	SerialNumber          string   `json:"serial-number" cbor:"serial-number"`
}

// DataInterchangeFormat values for GET /.well-known/brski/dif.
const (
	DIFJSON = "application/json"
	DIFCBOR = "application/cbor"
)
