package common

import "github.com/fatih/color"

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.FgHiBlack)
)

// Ok, Fail and Dim color CLI status text. They honour color.NoColor, which
// is set when stdout is not a terminal.
func Ok(s string) string   { return okColor.Sprint(s) }
func Fail(s string) string { return failColor.Sprint(s) }
func Dim(s string) string  { return dimColor.Sprint(s) }
