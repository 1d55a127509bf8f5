package domain

import "testing"

func TestGenerateCodeShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code := GenerateCode("")
		if !IsPermanentCode(code, DefaultCodePrefix) {
			t.Fatalf("generated code %q not recognised", code)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
	if code := GenerateCode("props"); !IsPermanentCode(code, "PROPS") {
		t.Fatalf("prefix not applied: %q", code)
	}
}

func TestIsPermanentCode(t *testing.T) {
	cases := map[string]bool{
		"ASSET-1A2B3C4D":   true,
		" asset-1a2b3c4d ": true,
		"ASSET-1A2B3C4":    false,
		"ASSET-1A2B3C4DE":  false,
		"04:A3:B2:11":      false,
		"OTHER-1A2B3C4D":   false,
	}
	for code, want := range cases {
		if got := IsPermanentCode(code, DefaultCodePrefix); got != want {
			t.Errorf("IsPermanentCode(%q) = %v, want %v", code, got, want)
		}
	}
	if !IsPermanentCode("OTHER-1A2B3C4D", "") {
		t.Fatalf("empty prefix should accept any prefix")
	}
}
