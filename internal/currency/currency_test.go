package currency

import "testing"

func TestConvertToUSD(t *testing.T) {
	converter := NewFixedRateConverter()

	usd, err := converter.ConvertToUSD(5000, "USD")
	if err != nil || usd != 5000 {
		t.Fatalf("USD identity broken: %d, %v", usd, err)
	}

	eur, err := converter.ConvertToUSD(1000, "EUR")
	if err != nil || eur != 1080 {
		t.Fatalf("expected 1080, got %d, %v", eur, err)
	}

	// Case and whitespace are tolerated.
	gbp, err := converter.ConvertToUSD(100, " gbp ")
	if err != nil || gbp != 127 {
		t.Fatalf("expected 127, got %d, %v", gbp, err)
	}

	if _, err := converter.ConvertToUSD(100, "XXX"); err != ErrUnsupportedCurrency {
		t.Fatalf("expected ErrUnsupportedCurrency, got %v", err)
	}
}

func TestConvertRoundsBankers(t *testing.T) {
	converter := NewFixedRateConverter()
	// 25 * 1.08 = 27 exactly; 23 * 1.08 = 24.84 -> 25.
	got, err := converter.ConvertToUSD(23, "EUR")
	if err != nil || got != 25 {
		t.Fatalf("expected 25, got %d, %v", got, err)
	}
}
