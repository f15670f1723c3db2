package sign

import (
	"strings"
	"testing"
)

func TestSignIsDeterministic(t *testing.T) {
	params := map[string]string{
		"MerchantID":      "2000132",
		"MerchantTradeNo": "MT20250101120000AB",
		"TotalAmount":     "100",
		"TradeDesc":       "test order",
	}

	first := Sign(params, "5294y06JbISpM5x9", "v77hoKGq4kWxNNIS")
	second := Sign(params, "5294y06JbISpM5x9", "v77hoKGq4kWxNNIS")

	if first != second {
		t.Fatalf("signatures differ: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(first))
	}
	if first != strings.ToUpper(first) {
		t.Fatal("signature must be uppercase hex")
	}
}

func TestSignIgnoresExistingSignatureField(t *testing.T) {
	params := map[string]string{
		"MerchantID": "2000132",
		"ItemName":   "widget",
	}
	withSig := map[string]string{
		"MerchantID": "2000132",
		"ItemName":   "widget",
		FieldName:    "BOGUS",
	}

	if Sign(params, "key12345", "iv123456") != Sign(withSig, "key12345", "iv123456") {
		t.Fatal("signature field must be excluded from the digest input")
	}
}

func TestSignSortsKeysCaseInsensitively(t *testing.T) {
	// abc must sort between Abb and aBd regardless of case.
	a := map[string]string{"Abb": "1", "abc": "2", "aBd": "3"}
	b := map[string]string{"aBd": "3", "Abb": "1", "abc": "2"}

	if Sign(a, "key12345", "iv123456") != Sign(b, "key12345", "iv123456") {
		t.Fatal("signature must not depend on map iteration order")
	}
}

func TestSignSpecialCharacterEncoding(t *testing.T) {
	// These characters get percent-encoded with uppercase hex before the
	// digest input is lowercased; spaces become plus signs.
	params := map[string]string{
		"TradeDesc": "a b!c'd(e)f*g",
		"ItemName":  "100% cotton & silk",
	}

	sig1 := Sign(params, "key12345", "iv123456")
	sig2 := Sign(params, "key12345", "iv123456")
	if sig1 != sig2 {
		t.Fatal("special characters must encode deterministically")
	}
}

func TestVerify(t *testing.T) {
	params := map[string]string{
		"MerchantID":      "2000132",
		"MerchantTradeNo": "MT20250101120000AB",
		"RtnCode":         "1",
		"TradeAmt":        "100",
	}
	sig := Sign(params, "key12345", "iv123456")

	t.Run("accepts matching signature", func(t *testing.T) {
		if !Verify(params, sig, "key12345", "iv123456") {
			t.Fatal("expected valid signature to verify")
		}
	})

	t.Run("accepts lowercase hex", func(t *testing.T) {
		if !Verify(params, strings.ToLower(sig), "key12345", "iv123456") {
			t.Fatal("verification must be case-insensitive on the provided value")
		}
	})

	t.Run("rejects tampered field", func(t *testing.T) {
		tampered := map[string]string{}
		for k, v := range params {
			tampered[k] = v
		}
		tampered["TradeAmt"] = "9999"
		if Verify(tampered, sig, "key12345", "iv123456") {
			t.Fatal("expected tampered params to fail verification")
		}
	})

	t.Run("rejects wrong credentials", func(t *testing.T) {
		if Verify(params, sig, "otherkey", "otheriv1") {
			t.Fatal("expected wrong hash key to fail verification")
		}
	})

	t.Run("rejects empty signature", func(t *testing.T) {
		if Verify(params, "", "key12345", "iv123456") {
			t.Fatal("expected empty signature to fail verification")
		}
	})
}
