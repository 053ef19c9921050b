package transaction

import "testing"

func TestSanitizeDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"POS PURCHASE STARBUCKS #1234", "Starbucks"},
		{"ACH WHOLE FOODS MARKET 10450", "Whole Foods Market"},
		{"DEBIT CARD SHELL OIL 57442", "Shell Oil"},
		{"checkcard  TARGET   STORE", "Target Store"},
		{"SPOTIFY XX9876", "Spotify"},
		{"Uber Trip", "Uber Trip"},
		{"  ", ""},
		{"#12345", "#12345"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeDisplayName(tt.in); got != tt.want {
				t.Errorf("SanitizeDisplayName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
