package messaging

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"wa_id without plus", "5491130001111", "+5491130001111"},
		{"already e164", "+5491130001111", "+5491130001111"},
		{"argentina without mobile marker", "541130001111", "+5491130001111"},
		{"local area code and number", "1130001111", "+5491130001111"},
		{"formatted local", "11 3000-1111", "+5491130001111"},
		{"double zero prefix", "005491130001111", "+5491130001111"},
		{"other country", "521552000333", "+521552000333"},
		{"empty", "   ", ""},
		{"letters only", "hola", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeE164(tc.in); got != tc.want {
				t.Fatalf("NormalizeE164(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
