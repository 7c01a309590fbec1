// Package ui contains the interactive terminal views for tempo.
//
// [LoginModel] is a [tea.Model] that wraps one authorization attempt: it kicks
// the coordinator off in a command, spins while the browser round-trip is
// pending, and renders the terminal outcome. Log output must be redirected to
// a file while a program is running so it does not corrupt the render.
package ui
