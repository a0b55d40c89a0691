// Package ruleql implements a small textual rule grammar as an alternative
// to the JSON/YAML rule-file formats: one rule per block, a flat AND-joined
// list of conditions, no OR and no nesting.
package ruleql

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Document is the top-level parse result: zero or more rule blocks.
type Document struct {
	Rules []*ruleNode `@@*`
}

type ruleNode struct {
	Code        string       `"rule" @Ident`
	Priority    string       `( "priority" @Number )?`
	Description string       `( "description" @String )?`
	Disabled    bool         `@"disabled"?`
	Conditions  []*condition `"{" @@ ( "and" @@ )* "}"`
}

// condition is one leaf condition; exactly one of the tail alternatives is
// populated depending on which shape matched.
type condition struct {
	Field    string          `@Ident`
	Null     *nullTail       `(  @@`
	Between  *betweenTail    ` | @@`
	In       *inTail         ` | @@`
	Contains *containsTail   ` | @@`
	Matches  *matchesTail    ` | @@`
	Compare  *compareTail    ` | @@ )`
}

type nullTail struct {
	Not bool `"is" ( @"not" )? "null"`
}

type betweenTail struct {
	Low  string `"between" "[" @Number`
	High string `"," @Number "]"`
}

type inTail struct {
	Values []string `"in" "[" ( @Ident | @String | @Number ) ( "," ( @Ident | @String | @Number ) )* "]"`
}

type containsTail struct {
	Value string `"contains" @String`
}

type matchesTail struct {
	Pattern string `"matches" @String`
}

type compareTail struct {
	Operator string `@( "==" | "!=" | ">" | "<" )`
	Value    string `( @Ident | @String | @Number )`
}

var ruleqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "Keyword", Pattern: `\b(rule|priority|description|disabled|between|in|contains|matches|is|not|null|and)\b`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `[-+]?\d+(\.\d+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Operator", Pattern: `==|!=|<=|>=|<|>`},
	{Name: "Punct", Pattern: `[{}\[\](),]`},
})

var grammarParser = participle.MustBuild[Document](
	participle.Lexer(ruleqlLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)
