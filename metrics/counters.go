package metrics

import "github.com/prometheus/client_golang/prometheus"

// VouchersIssued counts vouchers minted at the MASA or countersigned
// at the Registrar, labeled by role and outcome.
var VouchersIssued = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brski_prm_vouchers_issued_total",
		Help: "Vouchers issued, by issuing role and outcome",
	},
	[]string{"role", "outcome"})

// NonceReplaysDetected counts PVR/RVR nonces the Registrar rejected as
// already seen (spec.md §4.2 "replay-detected" edge case).
var NonceReplaysDetected = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "brski_prm_nonce_replays_detected_total",
		Help: "PVR/RVR nonces rejected by the Registrar as replays",
	})

func init() {
	prometheus.MustRegister(VouchersIssued, NonceReplaysDetected)
}
