package conv

import "testing"

func TestAppendHex(t *testing.T) {
	got := string(AppendHex(nil, []byte{0x24, 0x0a, 0xc4, 0xff}))
	if got != "240ac4ff" {
		t.Fatalf("AppendHex = %q", got)
	}
}

func TestLastHex(t *testing.T) {
	mac := []byte{0x24, 0x0a, 0xc4, 0x12, 0xbe, 0xef}
	for _, c := range []struct {
		n    int
		want string
	}{
		{4, "beef"},
		{2, "ef"},
		{12, "240ac412beef"},
		{40, "240ac412beef"},
	} {
		if got := LastHex(mac, c.n); got != c.want {
			t.Fatalf("LastHex(%d) = %q, want %q", c.n, got, c.want)
		}
	}
	if got := LastHex(nil, 4); got != "" {
		t.Fatalf("LastHex(nil) = %q", got)
	}
}
