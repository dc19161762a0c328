package sandbox

import (
	"go/scanner"
	"go/token"
	"strings"
)

// chunk is a run of consecutive top-level declarations or statements.
// Text is padded with newlines so reported line numbers match the script.
type chunk struct {
	decl bool
	text string
}

type lexeme struct {
	off int
	tok token.Token
}

// splitChunks cuts a script into alternating runs of declarations
// (func, type, const, var) and statements. The interpreter picks file or
// statement mode from the first token of each evaluation, so a script that
// mixes both has to be fed to it one run at a time. A script that does not
// tokenize is returned whole, leaving the error to the interpreter.
func splitChunks(src string) []chunk {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(src))

	var s scanner.Scanner
	s.Init(file, []byte(src), nil, 0)

	var lex []lexeme
	for {
		pos, tok, _ := s.Scan()
		if tok == token.EOF {
			break
		}
		lex = append(lex, lexeme{off: file.Offset(pos), tok: tok})
	}
	if s.ErrorCount > 0 {
		return []chunk{{text: src}}
	}

	type span struct {
		decl       bool
		start, end int
	}
	var spans []span
	depth := 0
	start := -1
	decl := false
	for i, l := range lex {
		if start < 0 {
			if l.tok == token.SEMICOLON {
				continue
			}
			start = l.off
			decl = isDecl(lex, i)
		}
		switch l.tok {
		case token.LPAREN, token.LBRACE, token.LBRACK:
			depth++
		case token.RPAREN, token.RBRACE, token.RBRACK:
			depth--
		case token.SEMICOLON:
			if depth == 0 {
				spans = append(spans, span{decl: decl, start: start, end: l.off})
				start = -1
			}
		}
	}
	if start >= 0 {
		spans = append(spans, span{decl: decl, start: start, end: len(src)})
	}

	var chunks []chunk
	for i := 0; i < len(spans); {
		j := i
		for j+1 < len(spans) && spans[j+1].decl == spans[i].decl {
			j++
		}
		first, last := spans[i], spans[j]
		pad := strings.Repeat("\n", strings.Count(src[:first.start], "\n"))
		chunks = append(chunks, chunk{decl: first.decl, text: pad + src[first.start:last.end]})
		i = j + 1
	}
	return chunks
}

// isDecl reports whether the statement starting at lex[i] is a top-level
// declaration. A func keyword only declares when a name follows it;
// otherwise it opens a function literal.
func isDecl(lex []lexeme, i int) bool {
	switch lex[i].tok {
	case token.TYPE, token.CONST, token.VAR:
		return true
	case token.FUNC:
		return i+1 < len(lex) && lex[i+1].tok == token.IDENT
	}
	return false
}
