package main

import "testing"

func TestParseCredentials(t *testing.T) {
	c, ok := parseCredentials("home:pa:ss")
	if !ok || c.Name != "home" || c.Secret != "pa:ss" {
		t.Fatalf("parseCredentials = %+v, %v", c, ok)
	}
	for _, bad := range []string{"nocolon", ":secret"} {
		if _, ok := parseCredentials(bad); ok {
			t.Fatalf("%q accepted", bad)
		}
	}
}
