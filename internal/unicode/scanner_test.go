package unicode

import "testing"

func TestScanCleanText(t *testing.T) {
	res := Scan("yes\nProceed? [y/N]\t1")
	if !res.Clean {
		t.Fatalf("expected clean, got findings %v", res.Findings)
	}
	if res.Stripped != "yes\nProceed? [y/N]\t1" {
		t.Errorf("stripped changed clean input: %q", res.Stripped)
	}
}

func TestScanZeroWidthInReply(t *testing.T) {
	res := Scan("y\u200Bes")
	if res.Clean {
		t.Fatal("zero-width space not detected")
	}
	if res.Findings[0].Category != "zero-width" {
		t.Errorf("category = %q", res.Findings[0].Category)
	}
	if res.Findings[0].Codepoint != "U+200B" {
		t.Errorf("codepoint = %q", res.Findings[0].Codepoint)
	}
	if res.Stripped != "yes" {
		t.Errorf("stripped = %q, want %q", res.Stripped, "yes")
	}
}

func TestScanBidiOverride(t *testing.T) {
	res := Scan("no\u202Eyes")
	if res.Clean {
		t.Fatal("bidi override not detected")
	}
	if res.Findings[0].Category != "bidi-control" {
		t.Errorf("category = %q", res.Findings[0].Category)
	}
}

func TestScanTagCharacters(t *testing.T) {
	// U+E0079 U+E0065 U+E0073 spell "yes" in tag characters.
	res := Scan("no\U000E0079\U000E0065\U000E0073")
	if res.Clean {
		t.Fatal("tag characters not detected")
	}
	for _, f := range res.Findings {
		if f.Category != "tag-char" {
			t.Errorf("category = %q", f.Category)
		}
	}
	if res.Stripped != "no" {
		t.Errorf("stripped = %q, want %q", res.Stripped, "no")
	}
}

func TestScanControlCharacters(t *testing.T) {
	res := Scan("yes\x1b\x00")
	if res.Clean {
		t.Fatal("control characters not detected")
	}
	if len(res.Findings) != 2 {
		t.Fatalf("findings = %d, want 2", len(res.Findings))
	}
	if res.Stripped != "yes" {
		t.Errorf("stripped = %q", res.Stripped)
	}
}

func TestScanInvalidUTF8(t *testing.T) {
	res := Scan("ok\xff")
	if res.Clean {
		t.Fatal("invalid UTF-8 not detected")
	}
	if res.Findings[0].Category != "invalid-utf8" {
		t.Errorf("category = %q", res.Findings[0].Category)
	}
}

func TestScanAllowsNonASCIIText(t *testing.T) {
	res := Scan("créer le fichier? oui")
	if !res.Clean {
		t.Fatalf("accented text flagged: %v", res.Findings)
	}
}

func TestHasHiddenAndStripHidden(t *testing.T) {
	if HasHidden("plain") {
		t.Error("plain text flagged")
	}
	if !HasHidden("a\u2060b") {
		t.Error("word joiner missed")
	}
	if got := StripHidden("a\u2060b"); got != "ab" {
		t.Errorf("StripHidden = %q", got)
	}
}
