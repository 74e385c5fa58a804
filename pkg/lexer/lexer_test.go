package lexer

import (
	"testing"

	"github.com/mstar-lang/malic/pkg/token"
)

func TestNextTokenOperatorsAndKeywords(t *testing.T) {
	input := `class Foo {
  int x;
  int get() { return x + 1; }
}
// trailing comment
`
	want := []token.Kind{
		token.KwClass, token.Ident, token.LBrace,
		token.KwInt, token.Ident, token.Semicolon,
		token.KwInt, token.Ident, token.LParen, token.RParen, token.LBrace,
		token.KwReturn, token.Ident, token.Plus, token.IntLit, token.Semicolon,
		token.RBrace,
		token.RBrace,
		token.EOF,
	}

	l := New(input)
	for i, k := range want {
		tok := l.NextToken()
		if tok.Kind != k {
			t.Fatalf("token %d: got %v, want %v (literal %q)", i, tok.Kind, k, tok.Literal)
		}
	}
}

func TestNextTokenStringLiteralEscapes(t *testing.T) {
	l := New(`"a\nb"`)
	tok := l.NextToken()
	if tok.Kind != token.StringLit {
		t.Fatalf("got kind %v", tok.Kind)
	}
	if tok.Literal != "a\nb" {
		t.Fatalf("got literal %q", tok.Literal)
	}
}

func TestNextTokenCompoundOperators(t *testing.T) {
	l := New("a++ b-- c&&d c||d e<=f e>=f e==f e!=f g<<h g>>h")
	var kinds []token.Kind
	for {
		tok := l.NextToken()
		if tok.Kind == token.EOF {
			break
		}
		kinds = append(kinds, tok.Kind)
	}
	want := []token.Kind{
		token.Ident, token.Increment,
		token.Ident, token.Decrement,
		token.Ident, token.AndAnd, token.Ident,
		token.Ident, token.OrOr, token.Ident,
		token.Ident, token.Le, token.Ident,
		token.Ident, token.Ge, token.Ident,
		token.Ident, token.EqEq, token.Ident,
		token.Ident, token.NotEq, token.Ident,
		token.Ident, token.Shl, token.Ident,
		token.Ident, token.Shr, token.Ident,
	}
	if len(kinds) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(kinds), len(want))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("token %d: got %v, want %v", i, kinds[i], want[i])
		}
	}
}

func TestLineColTracking(t *testing.T) {
	l := New("a\nbb")
	first := l.NextToken()
	if first.Line != 1 {
		t.Fatalf("want line 1, got %d", first.Line)
	}
	second := l.NextToken()
	if second.Line != 2 {
		t.Fatalf("want line 2, got %d", second.Line)
	}
}
