package api

import (
	"testing"

	"golang.org/x/time/rate"

	"github.com/starford/nbweb/internal/models"
)

// countingResolver wraps the bcrypt comparison so tests can see how often it runs.
func countingResolver(t *testing.T) (*tokenResolver, *int) {
	t.Helper()
	tokens := newTokenResolver(tokenAuth(t))
	calls := 0
	compare := tokens.compare
	tokens.compare = func(hash, token []byte) error {
		calls++
		return compare(hash, token)
	}
	return tokens, &calls
}

func TestTokenResolver_ReaderSkipsBcrypt(t *testing.T) {
	tokens, calls := countingResolver(t)
	for range 3 {
		if v := tokens.viewer(readerToken); v != (models.Viewer{Authenticated: true}) {
			t.Fatalf("reader viewer = %+v", v)
		}
	}
	if *calls != 0 {
		t.Errorf("bcrypt ran %d times for the reader token", *calls)
	}
}

func TestTokenResolver_EditorCheckedOnce(t *testing.T) {
	tokens, calls := countingResolver(t)
	for range 3 {
		if v := tokens.viewer(editorToken); v != models.EditorViewer {
			t.Fatalf("editor viewer = %+v", v)
		}
	}
	if *calls != 1 {
		t.Errorf("bcrypt ran %d times, want 1", *calls)
	}
}

func TestTokenResolver_RejectedTokenRemembered(t *testing.T) {
	tokens, calls := countingResolver(t)
	for range 5 {
		if v := tokens.viewer("guess"); v != models.Anonymous {
			t.Fatalf("unknown token viewer = %+v", v)
		}
	}
	if *calls != 1 {
		t.Errorf("bcrypt ran %d times for one bad token, want 1", *calls)
	}
}

func TestTokenResolver_LimitsUnknownTokens(t *testing.T) {
	tokens, calls := countingResolver(t)
	tokens.limiter = rate.NewLimiter(0, 2)
	for _, tok := range []string{"g1", "g2", "g3", "g4"} {
		if v := tokens.viewer(tok); v != models.Anonymous {
			t.Fatalf("viewer(%s) = %+v", tok, v)
		}
	}
	if *calls != 2 {
		t.Errorf("bcrypt ran %d times, want 2", *calls)
	}
	// The reader token never waits on the limiter.
	if v := tokens.viewer(readerToken); !v.Authenticated {
		t.Errorf("reader viewer = %+v", v)
	}
}
