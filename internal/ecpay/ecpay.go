// Package ecpay speaks the convenience-store barcode processor's wire
// protocol: outbound checkout submissions and the two inbound callback
// payload shapes.
package ecpay

const (
	PaymentTypeAio       = "aio"
	ChoosePaymentBarcode = "BARCODE"
	EncryptTypeSHA256    = "1"
	TradeDateLayout      = "2006/01/02 15:04:05"
	BarcodeExpireLayout  = "2006/01/02"

	// RtnCode values the processor reports on callbacks.
	RtnCodePaid          = 1
	RtnCodeBarcodeIssued = 10100073

	// The literal plain-text acknowledgments the processor requires. Anything
	// other than AckSuccess triggers its redelivery schedule.
	AckSuccess       = "1|OK"
	AckFailurePrefix = "0|"
)

// Ack builds the plain-text callback acknowledgment body.
func Ack(ok bool, reason string) string {
	if ok {
		return AckSuccess
	}
	if reason == "" {
		reason = "Error"
	}
	return AckFailurePrefix + reason
}
