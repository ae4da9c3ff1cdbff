package polymarket

import (
	"context"
	"encoding/json"
	"testing"
)

func TestParsePrices(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantOK  bool
		wantYes string
		wantNo  string
	}{
		{"encoded string of strings", `"[\"0.75\", \"0.25\"]"`, true, "0.75", "0.25"},
		{"native array of strings", `["0.4", "0.6"]`, true, "0.4", "0.6"},
		{"native array of numbers", `[0.45, 0.55]`, true, "0.45", "0.55"},
		{"encoded string of numbers", `"[1, 0]"`, true, "1", "0"},
		{"extra outcomes ignored", `["0.2","0.3","0.5"]`, true, "0.2", "0.3"},
		{"single element", `["0.5"]`, false, "", ""},
		{"empty array", `[]`, false, "", ""},
		{"null", `null`, false, "", ""},
		{"empty", ``, false, "", ""},
		{"garbage string", `"not json"`, false, "", ""},
		{"non numeric element", `["abc", "0.5"]`, false, "", ""},
		{"null element", `[null, "0.5"]`, false, "", ""},
		{"object", `{"yes": 0.5}`, false, "", ""},
		{"nan", `["NaN", "0.5"]`, false, "", ""},
		{"overflowing exponent", `["1e400", "0.5"]`, false, "", ""},
		{"encoded overflowing exponent", `"[\"0.5\", \"-1e999\"]"`, false, "", ""},
		{"small exponent", `["5e-1", "0.5"]`, true, "0.5", "0.5"},
		{"out of range is parsed", `["1.7", "-0.7"]`, true, "1.7", "-0.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, ok := ParsePrices(json.RawMessage(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ParsePrices(%s) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if pair.Yes.String() != tt.wantYes {
				t.Errorf("yes = %s, want %s", pair.Yes, tt.wantYes)
			}
			if pair.No.String() != tt.wantNo {
				t.Errorf("no = %s, want %s", pair.No, tt.wantNo)
			}
		})
	}
}

func TestMakeEventURL(t *testing.T) {
	tests := []struct {
		id, slug, title string
		want            string
	}{
		{"123", "us-election", "ignored", "https://polymarket.com/event/us-election?tid=123"},
		{"7", "", "Will BTC hit $100k in 2025?", "https://polymarket.com/event/will-btc-hit-100k-in-2025?tid=7"},
		{"8", "", "Élection présidentielle", "https://polymarket.com/event/election-presidentielle?tid=8"},
		{"9", "", "", "https://polymarket.com/event/?tid=9"},
	}
	for _, tt := range tests {
		if got := MakeEventURL(tt.id, tt.slug, tt.title); got != tt.want {
			t.Errorf("MakeEventURL(%q, %q, %q) = %q, want %q", tt.id, tt.slug, tt.title, got, tt.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"Hello World", "hello-world"},
		{"  --Trump's  odds!! ", "trump-s-odds"},
		{"Fed rate cut: 25bps?", "fed-rate-cut-25bps"},
		{"Zürich", "zurich"},
		{"日本", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestVolumeFilter(t *testing.T) {
	events := []Event{
		{ID: "busy"},
		{ID: "deep"},
		{ID: "quiet"},
	}
	_ = json.Unmarshal([]byte(`1000`), &events[0].Volume24hr)
	_ = json.Unmarshal([]byte(`"5"`), &events[0].Liquidity)
	_ = json.Unmarshal([]byte(`"10"`), &events[1].Volume24hr)
	_ = json.Unmarshal([]byte(`5000`), &events[1].Liquidity)

	anyOf := VolumeFilter{MinVolume24hr: 500, MinLiquidity: 1000, MatchAny: true}
	got, err := anyOf.Enrich(context.Background(), events)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(got) != 2 || got[0].ID != "busy" || got[1].ID != "deep" {
		t.Errorf("MatchAny kept %v", ids(got))
	}

	all := VolumeFilter{MinVolume24hr: 500, MinLiquidity: 1000}
	got, _ = all.Enrich(context.Background(), events)
	if len(got) != 0 {
		t.Errorf("MatchAll kept %v, want none", ids(got))
	}

	off := VolumeFilter{}
	got, _ = off.Enrich(context.Background(), events)
	if len(got) != 3 {
		t.Errorf("disabled filter kept %d events, want 3", len(got))
	}
}

func ids(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
