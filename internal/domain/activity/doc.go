// Package activity implements the debounced activity clock: the record of
// the most recent qualifying user input (pointer, key, click, scroll, touch,
// wheel). Bursts collapse into at most one update per window, always
// carrying the last input's timestamp.
package activity
