package rag

import (
	"fmt"

	"notebookrag/internal/model"
)

// WindowPolicy decides which part of the recent-message window is shown to
// the rewriter and generator.
type WindowPolicy string

const (
	// WindowExcludeLatest drops the most recently appended message. The turn
	// reads history after persisting the question, so the dropped item is the
	// question itself.
	WindowExcludeLatest WindowPolicy = "exclude_latest"
	// WindowIncludeLatest returns the whole window.
	WindowIncludeLatest WindowPolicy = "include_latest"

	DefaultWindowSize = 7
)

func ParseWindowPolicy(s string) (WindowPolicy, error) {
	switch WindowPolicy(s) {
	case "", WindowExcludeLatest:
		return WindowExcludeLatest, nil
	case WindowIncludeLatest:
		return WindowIncludeLatest, nil
	default:
		return "", fmt.Errorf("unknown history policy %q", s)
	}
}

// Apply expects window ordered oldest first.
func (p WindowPolicy) Apply(window []model.ChatMessage) []model.ChatMessage {
	if p == WindowIncludeLatest || len(window) == 0 {
		return window
	}
	return window[:len(window)-1]
}

// MaxItems is the largest history length the policy can yield for size.
func (p WindowPolicy) MaxItems(size int) int {
	if size <= 0 {
		return 0
	}
	if p == WindowIncludeLatest {
		return size
	}
	return size - 1
}
