package lexer

import "github.com/qsjs/quicksilver/internal/diag"

// Keyword enumerates every reserved and contextual keyword the lexer
// recognizes.
type Keyword int

const (
	KwAwait Keyword = iota
	KwBreak
	KwCase
	KwCatch
	KwClass
	KwConst
	KwContinue
	KwDebugger
	KwDefault
	KwDelete
	KwDo
	KwElse
	KwEnum
	KwExport
	KwExtends
	KwFalse
	KwFinally
	KwFor
	KwFunction
	KwIf
	KwImport
	KwIn
	KwInstanceof
	KwLet
	KwNew
	KwNull
	KwReturn
	KwStatic
	KwSuper
	KwSwitch
	KwThis
	KwThrow
	KwTrue
	KwTry
	KwTypeof
	KwVar
	KwVoid
	KwWhile
	KwWith
	KwYield

	// Contextual keywords — valid as identifiers in most positions.
	KwAs
	KwAsync
	KwFrom
	KwGet
	KwOf
	KwSet
	KwTarget
)

var keywordStrings = map[Keyword]string{
	KwAwait: "await", KwBreak: "break", KwCase: "case", KwCatch: "catch",
	KwClass: "class", KwConst: "const", KwContinue: "continue", KwDebugger: "debugger",
	KwDefault: "default", KwDelete: "delete", KwDo: "do", KwElse: "else",
	KwEnum: "enum", KwExport: "export", KwExtends: "extends", KwFalse: "false",
	KwFinally: "finally", KwFor: "for", KwFunction: "function", KwIf: "if",
	KwImport: "import", KwIn: "in", KwInstanceof: "instanceof", KwLet: "let",
	KwNew: "new", KwNull: "null", KwReturn: "return", KwStatic: "static",
	KwSuper: "super", KwSwitch: "switch", KwThis: "this", KwThrow: "throw",
	KwTrue: "true", KwTry: "try", KwTypeof: "typeof", KwVar: "var",
	KwVoid: "void", KwWhile: "while", KwWith: "with", KwYield: "yield",
	KwAs: "as", KwAsync: "async", KwFrom: "from", KwGet: "get",
	KwOf: "of", KwSet: "set", KwTarget: "target",
}

// keywords maps source text to the Keyword it denotes, used by the
// identifier scanner to classify words.
var keywords = map[string]Keyword{}

func init() {
	for k, s := range keywordStrings {
		keywords[s] = k
	}
}

func (k Keyword) String() string {
	if s, ok := keywordStrings[k]; ok {
		return s
	}
	return "<unknown keyword>"
}

// IsReserved reports whether k cannot be used as a binding identifier.
// The contextual keywords (as, async, from, get, of, set, target) are not
// reserved: they parse as plain identifiers outside the grammar positions
// that give them meaning.
func (k Keyword) IsReserved() bool {
	switch k {
	case KwAs, KwAsync, KwFrom, KwGet, KwOf, KwSet, KwTarget:
		return false
	default:
		return true
	}
}

// Kind identifies the lexical category of a Token.
type Kind int

const (
	// Literals
	NumberLiteral Kind = iota
	BigIntLiteral
	StringLiteral
	TemplateLiteral
	TemplateHead
	TemplateMiddle
	TemplateTail
	RegexLiteral

	// Identifiers and keywords
	Identifier
	PrivateName
	KeywordTok

	// Punctuators
	LeftParen
	RightParen
	LeftBrace
	RightBrace
	LeftBracket
	RightBracket
	Dot
	DotDotDot
	Semicolon
	Comma
	Colon
	Question
	QuestionDot
	QuestionQuestion
	QuestionQuestionEquals

	// Operators
	Plus
	Minus
	Star
	StarStar
	Slash
	Percent
	PlusPlus
	MinusMinus

	// Comparison
	Less
	Greater
	LessEquals
	GreaterEquals
	EqualsEquals
	EqualsEqualsEquals
	BangEquals
	BangEqualsEquals

	// Bitwise
	Ampersand
	Pipe
	Caret
	Tilde
	LessLess
	GreaterGreater
	GreaterGreaterGreater

	// Logical
	Bang
	AmpersandAmpersand
	PipePipe

	// Assignment
	Equals
	PlusEquals
	MinusEquals
	StarEquals
	StarStarEquals
	SlashEquals
	PercentEquals
	LessLessEquals
	GreaterGreaterEquals
	GreaterGreaterGreaterEquals
	AmpersandEquals
	PipeEquals
	CaretEquals
	AmpersandAmpersandEquals
	PipePipeEquals

	Arrow

	Eof
)

// Token is a single lexical unit: its kind, the exact source slice it
// covers, and the keyword it denotes (only meaningful when Kind ==
// KeywordTok).
type Token struct {
	Kind     Kind
	Text     string
	Keyword  Keyword
	Location diag.Location
}

// IsAssignmentOperator reports whether k is one of the compound or plain
// assignment operators.
func (k Kind) IsAssignmentOperator() bool {
	switch k {
	case Equals, PlusEquals, MinusEquals, StarEquals, StarStarEquals,
		SlashEquals, PercentEquals, LessLessEquals, GreaterGreaterEquals,
		GreaterGreaterGreaterEquals, AmpersandEquals, PipeEquals, CaretEquals,
		AmpersandAmpersandEquals, PipePipeEquals, QuestionQuestionEquals:
		return true
	default:
		return false
	}
}

// CanStartExpression reports whether a token of this kind may begin a
// primary or unary expression. Used by the parser for ASI and for
// disambiguating statement boundaries.
func (t Token) CanStartExpression() bool {
	switch t.Kind {
	case Identifier, NumberLiteral, BigIntLiteral, StringLiteral,
		TemplateLiteral, TemplateHead, RegexLiteral,
		LeftParen, LeftBracket, LeftBrace,
		Plus, Minus, Bang, Tilde, PlusPlus, MinusMinus:
		return true
	case KeywordTok:
		switch t.Keyword {
		case KwTrue, KwFalse, KwNull, KwThis, KwSuper, KwNew, KwFunction,
			KwClass, KwAsync, KwTypeof, KwVoid, KwDelete, KwAwait, KwYield:
			return true
		}
		return false
	default:
		return false
	}
}
