package transit

import "testing"

func TestCheckOldTokenWaitsForNewline(t *testing.T) {
	partial := "please relay " + strings64('a')
	state, _, _ := checkOldToken(partial)
	if state != 0 {
		t.Fatalf("got state %d, want 0 (waiting)", state)
	}
}

func TestCheckOldTokenMatch(t *testing.T) {
	tok := strings64('a')
	line := "please relay " + tok + "\n"
	state, hasNewline, got := checkOldToken(line)
	if state != 1 || !hasNewline || got != tok {
		t.Fatalf("got (%d, %v, %q), want (1, true, %q)", state, hasNewline, got, tok)
	}
}

func TestCheckOldTokenMalformed(t *testing.T) {
	state, hasNewline, _ := checkOldToken("not a token at all\n")
	if state != -1 || !hasNewline {
		t.Fatalf("got (%d, %v), want (-1, true)", state, hasNewline)
	}
}

func TestCheckNewTokenMatch(t *testing.T) {
	tok := strings64('a')
	sideStr := strings16('b')
	line := "please relay " + tok + " for side " + sideStr + "\n"
	state, _, gotTok, gotSide := checkNewToken(line)
	if state != 1 || gotTok != tok || gotSide != sideStr {
		t.Fatalf("got (%d, %q, %q), want (1, %q, %q)", state, gotTok, gotSide, tok, sideStr)
	}
}

func TestCheckNewTokenWaiting(t *testing.T) {
	partial := "please relay " + strings64('a') + " for side "
	state, _, _, _ := checkNewToken(partial)
	if state != 0 {
		t.Fatalf("got state %d, want 0 (waiting)", state)
	}
}

func strings64(c byte) string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

func strings16(c byte) string {
	b := make([]byte, 16)
	for i := range b {
		b[i] = c
	}
	return string(b)
}
