package words

import "testing"

func TestPairDeterministic(t *testing.T) {
	a1, b1 := Pair(6, 200)
	a2, b2 := Pair(6, 200)
	if a1 != a2 || b1 != b2 {
		t.Fatalf("Pair not deterministic: (%s,%s) vs (%s,%s)", a1, b1, a2, b2)
	}
}

func TestListsDisjoint(t *testing.T) {
	seen := make(map[string]bool, len(Even))
	for _, w := range Even {
		seen[w] = true
	}
	for _, w := range Odd {
		if seen[w] {
			t.Fatalf("word %q appears in both lists", w)
		}
	}
}
