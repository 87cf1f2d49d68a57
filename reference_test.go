package solpay

import (
	"regexp"
	"testing"
)

var referencePattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestGenerateReference(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ref, err := GenerateReference()
		if err != nil {
			t.Fatalf("GenerateReference failed: %v", err)
		}
		if !referencePattern.MatchString(ref) {
			t.Errorf("reference %q is not 64 lowercase hex characters", ref)
		}
		if seen[ref] {
			t.Errorf("duplicate reference %q", ref)
		}
		seen[ref] = true
	}
}
