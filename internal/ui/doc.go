// Package ui renders rendercast terminal output.
//
// Printer covers one-shot output: a header box, success and error boxes,
// and device lines. WatchModel is a Bubble Tea model for the live watch
// screen; feed it DeviceMsg from a registry subscription through
// tea.Program.Send.
//
// Output adapts to the terminal width, clamped between MinTerminalWidth
// and MaxContentWidth. Use IsTerminal to decide between the styled and
// plain renderings.
package ui
