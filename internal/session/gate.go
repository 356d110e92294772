// Package session tracks per-process session state for the game.
package session

import (
	"strings"
	"sync/atomic"
)

const (
	// DefaultKeyword marks a first prompt that already asks for a game.
	DefaultKeyword = "trpg"

	// DefaultInstruction replaces a first prompt that does not start with the keyword.
	DefaultInstruction = "Prompt: TRPG 게임 진행 말고 다른 질문은 답을 하지마, 그리고 trpg 게임을 장르 아무거나 해서 너가 알아서 진행해줘"
)

// Gate rewrites the first prompt of the process lifetime into a scene-setup
// instruction. The flag is never reset; a restart starts a new session.
type Gate struct {
	keyword     string
	instruction string
	handled     atomic.Bool
}

// NewGate creates a gate. Empty arguments fall back to the defaults.
func NewGate(keyword, instruction string) *Gate {
	if keyword == "" {
		keyword = DefaultKeyword
	}
	if instruction == "" {
		instruction = DefaultInstruction
	}
	return &Gate{
		keyword:     strings.ToLower(keyword),
		instruction: instruction,
	}
}

// Apply returns the prompt to send to the model. Only the very first call can
// rewrite; the flag flips on that call whatever the outcome.
func (g *Gate) Apply(prompt string) string {
	if !g.handled.CompareAndSwap(false, true) {
		return prompt
	}
	if strings.HasPrefix(strings.ToLower(prompt), g.keyword) {
		return prompt
	}
	return g.instruction
}

// Handled reports whether the first prompt has been seen.
func (g *Gate) Handled() bool {
	return g.handled.Load()
}
