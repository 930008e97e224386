package snowflake

import "testing"

func TestParse(t *testing.T) {
	t.Parallel()
	v, err := Parse("100200300400500600")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if v != 100200300400500600 {
		t.Fatalf("Parse = %d", v)
	}

	for _, bad := range []string{"", "abc", "-1", "12.5", "18446744073709551616"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("Parse(%q) expected error", bad)
		}
	}
}

func TestValid(t *testing.T) {
	t.Parallel()
	if !Valid("42") {
		t.Fatal("Valid(42) = false")
	}
	if Valid("forty-two") {
		t.Fatal("Valid(forty-two) = true")
	}
}
