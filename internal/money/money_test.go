package money

import "testing"

func TestParseMinor(t *testing.T) {
	cases := []struct {
		input string
		want  int64
		err   error
	}{
		{"50", 5000, nil},
		{"50.5", 5050, nil},
		{"50.05", 5005, nil},
		{"0.01", 1, nil},
		{"-3.25", -325, nil},
		{"+1", 100, nil},
		{".99", 99, nil},
		{"50.055", 0, ErrTooManyDecimals},
		{"", 0, ErrInvalidAmount},
		{"abc", 0, ErrInvalidAmount},
		{"1.x", 0, ErrInvalidAmount},
	}
	for _, tc := range cases {
		got, err := ParseMinor(tc.input)
		if err != tc.err {
			t.Errorf("ParseMinor(%q) error = %v, want %v", tc.input, err, tc.err)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("ParseMinor(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestFormatMinor(t *testing.T) {
	cases := map[int64]string{
		5000:  "50.00",
		5005:  "50.05",
		1:     "0.01",
		0:     "0.00",
		-325:  "-3.25",
		12345: "123.45",
	}
	for input, want := range cases {
		if got := FormatMinor(input); got != want {
			t.Errorf("FormatMinor(%d) = %q, want %q", input, got, want)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, value := range []int64{0, 1, 99, 100, 5005, 123456789} {
		parsed, err := ParseMinor(FormatMinor(value))
		if err != nil {
			t.Fatalf("round trip %d failed: %v", value, err)
		}
		if parsed != value {
			t.Fatalf("round trip %d = %d", value, parsed)
		}
	}
}
