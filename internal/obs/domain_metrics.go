package obs

import "github.com/prometheus/client_golang/prometheus"

var (
	// ScanDecodedTotal counts barcodes decoded by the scan classifier.
	ScanDecodedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pos_scan_decoded_total",
		Help: "Number of barcode buffers decoded by the scan classifier.",
	})
	// ScanDiscardedTotal counts buffers discarded as human typing noise.
	ScanDiscardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pos_scan_discarded_total",
		Help: "Number of input buffers discarded below the barcode length threshold.",
	})
	// PromoApplyTotal counts promotion apply outcomes.
	PromoApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_promo_apply_total",
		Help: "Count of promotion apply attempts by outcome.",
	}, []string{"result"})
	// PromoRevokedTotal counts automatic promotion revocations after cart changes.
	PromoRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pos_promo_revoked_total",
		Help: "Number of promotions auto-revoked because their tagged products left the cart.",
	})
	// RedemptionAdjustedTotal counts loyalty redemption clamps by reason.
	RedemptionAdjustedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_redemption_adjusted_total",
		Help: "Count of loyalty point redemptions adjusted below the requested figure.",
	}, []string{"reason"})
	// CheckoutSubmitTotal counts transaction submission outcomes.
	CheckoutSubmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkout_submit_total",
		Help: "Count of checkout submissions by outcome.",
	}, []string{"result"})
	// ReceiptPrintTotal counts receipt print job outcomes.
	ReceiptPrintTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_receipt_print_total",
		Help: "Count of receipt print jobs by outcome.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		ScanDecodedTotal,
		ScanDiscardedTotal,
		PromoApplyTotal,
		PromoRevokedTotal,
		RedemptionAdjustedTotal,
		CheckoutSubmitTotal,
		ReceiptPrintTotal,
	)
}
