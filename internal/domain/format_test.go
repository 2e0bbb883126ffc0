package domain

import "testing"

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{950, "$950"},
		{35_200, "$35K"},
		{1_240_000, "$1.2M"},
		{0, "$0"},
	}
	for _, tt := range tests {
		if got := FormatUSD(tt.in); got != tt.want {
			t.Errorf("FormatUSD(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(12.2); got != "+12%" {
		t.Errorf("got %s", got)
	}
	if got := FormatPercent(-3.8); got != "-4%" {
		t.Errorf("got %s", got)
	}
}

func TestFormatCount(t *testing.T) {
	if got := FormatCount(87); got != "87" {
		t.Errorf("got %s", got)
	}
	if got := FormatCount(1_240); got != "1.2K" {
		t.Errorf("got %s", got)
	}
}

func TestToken_Display(t *testing.T) {
	d := Token{MarketCap: 2_500_000, Volume: 12_000, Holders: 320, PriceChange5m: 7.1, PriceChange1h: -20.4}.Display()
	want := Display{MarketCap: "$2.5M", Volume: "$12K", Holders: "320", PriceChange5m: "+7%", PriceChange1h: "-20%"}
	if d != want {
		t.Errorf("Display() = %+v, want %+v", d, want)
	}
}
