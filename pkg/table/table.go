// Package table centralizes pterm table rendering so every command prints
// the same way.
package table

import "github.com/pterm/pterm"

// Print renders rows with pterm's default boxed style.
func Print(rows pterm.TableData, hasHeader bool) {
	t := pterm.DefaultTable.WithData(rows)
	if hasHeader {
		t = t.WithHasHeader()
	}
	_ = t.Render()
}

// PrintTableNoPad renders rows without left padding, the compact style used
// for property/value dumps.
func PrintTableNoPad(rows pterm.TableData, hasHeader bool) {
	t := pterm.DefaultTable.WithData(rows).WithLeftAlignment()
	if hasHeader {
		t = t.WithHasHeader()
	}
	_ = t.Render()
}
