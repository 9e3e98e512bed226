package parser

import "fmt"

// SyntaxError reports the first part of the source that could not be parsed.
type SyntaxError struct {
	Message string `json:"message"`
	Offset  int    `json:"offset"` // zero-based character offset
	Line    int    `json:"line"`   // 1-based
	Column  int    `json:"column"` // 1-based, in characters
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d, column %d (offset %d): %s", e.Line, e.Column, e.Offset, e.Message)
}

func newSyntaxError(src []rune, offset int, message string) *SyntaxError {
	line, column := Position(src, offset)
	return &SyntaxError{
		Message: message,
		Offset:  offset,
		Line:    line,
		Column:  column,
	}
}

// Position converts a character offset into a 1-based line and column.
func Position(src []rune, offset int) (line, column int) {
	line, column = 1, 1
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return line, column
}
