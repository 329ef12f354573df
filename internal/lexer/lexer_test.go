package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenize(t *testing.T, src string) []Token {
	t.Helper()
	toks, err := New(src).Tokenize()
	require.NoError(t, err)
	return toks
}

func TestEmptySource(t *testing.T) {
	toks := tokenize(t, "")
	require.Len(t, toks, 1)
	assert.Equal(t, Eof, toks[0].Kind)
}

func TestIdentifiers(t *testing.T) {
	toks := tokenize(t, "foo bar _private $jquery")
	require.GreaterOrEqual(t, len(toks), 5)
	assert.Equal(t, "foo", toks[0].Text)
	assert.Equal(t, "bar", toks[1].Text)
	assert.Equal(t, "_private", toks[2].Text)
	assert.Equal(t, "$jquery", toks[3].Text)
}

func TestKeywords(t *testing.T) {
	toks := tokenize(t, "let const function if else")
	want := []Keyword{KwLet, KwConst, KwFunction, KwIf, KwElse}
	for i, k := range want {
		require.Equal(t, KeywordTok, toks[i].Kind)
		assert.Equal(t, k, toks[i].Keyword)
	}
}

func TestContextualKeywordIsNotReserved(t *testing.T) {
	assert.False(t, KwAsync.IsReserved())
	assert.True(t, KwClass.IsReserved())
}

func TestNumbers(t *testing.T) {
	toks := tokenize(t, "42 3.14 0xFF 0b1010 0o777 1e10 123n")
	wantText := []string{"42", "3.14", "0xFF", "0b1010", "0o777", "1e10"}
	for i, w := range wantText {
		assert.Equal(t, w, toks[i].Text)
	}
	assert.Equal(t, BigIntLiteral, toks[6].Kind)
}

func TestStrings(t *testing.T) {
	toks := tokenize(t, `"hello" 'world' "with \"escape"`)
	assert.Equal(t, `"hello"`, toks[0].Text)
	assert.Equal(t, `'world'`, toks[1].Text)
	assert.Equal(t, `"with \"escape"`, toks[2].Text)
}

func TestStringValueDecodesEscapes(t *testing.T) {
	v, err := StringValue(`"a\nb\tc"`)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\tc", v)
}

func TestOperators(t *testing.T) {
	toks := tokenize(t, "+ - * / === !== ?? ?.")
	want := []Kind{Plus, Minus, Star, Slash, EqualsEqualsEquals, BangEqualsEquals, QuestionQuestion, QuestionDot}
	for i, w := range want {
		assert.Equal(t, w, toks[i].Kind)
	}
}

func TestComments(t *testing.T) {
	toks := tokenize(t, "foo // comment\nbar /* block */ baz")
	assert.Equal(t, "foo", toks[0].Text)
	assert.Equal(t, "bar", toks[1].Text)
	assert.Equal(t, "baz", toks[2].Text)
}

func TestTemplateLiteralWithSubstitution(t *testing.T) {
	toks := tokenize(t, "`a${x}b`")
	require.GreaterOrEqual(t, len(toks), 4)
	assert.Equal(t, TemplateHead, toks[0].Kind)
	assert.Equal(t, Identifier, toks[1].Kind)
	assert.Equal(t, RightBrace, toks[2].Kind)
	assert.Equal(t, TemplateTail, toks[3].Kind)
}

func TestNestedTemplateBraceDepth(t *testing.T) {
	toks := tokenize(t, "`a${ {x: 1}.x }b`")
	var kinds []Kind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Contains(t, kinds, TemplateHead)
	assert.Contains(t, kinds, TemplateTail)
}

func TestPrivateName(t *testing.T) {
	toks := tokenize(t, "#foo")
	assert.Equal(t, PrivateName, toks[0].Kind)
	assert.Equal(t, "#foo", toks[0].Text)
}

func TestUnterminatedStringIsError(t *testing.T) {
	_, err := New("\"unterminated").Tokenize()
	assert.Error(t, err)
}

func TestNullishCoalescingAssign(t *testing.T) {
	toks := tokenize(t, "a ??= b")
	assert.Equal(t, QuestionQuestionEquals, toks[1].Kind)
	assert.True(t, toks[1].Kind.IsAssignmentOperator())
}
