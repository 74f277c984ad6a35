package model

import "strings"

func replace(s, old, repl string) string {
	return strings.Replace(s, old, repl, 1)
}
