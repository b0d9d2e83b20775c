// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

const defaultHistSize = 500

// history is the interactive command history: loaded at startup,
// appended to in memory, and written back atomically on exit.
type history struct {
	path  string
	lines []string
}

func historyPath() string {
	if p := os.Getenv("HISTFILE"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".posh_history")
}

func loadHistory() *history {
	h := &history{path: historyPath()}
	if h.path == "" {
		return h
	}
	data, err := os.ReadFile(h.path)
	if err != nil {
		return h
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			h.lines = append(h.lines, line)
		}
	}
	return h
}

func (h *history) add(entry string) {
	// multi-line commands are stored as one entry with the newlines
	// kept, which the load path splits back apart
	if n := len(h.lines); n > 0 && h.lines[n-1] == entry {
		return
	}
	h.lines = append(h.lines, entry)
}

// save writes the history file atomically, so that two exiting
// shells cannot interleave partial writes.
func (h *history) save() {
	if h.path == "" || len(h.lines) == 0 {
		return
	}
	lines := h.lines
	if len(lines) > defaultHistSize {
		lines = lines[len(lines)-defaultHistSize:]
	}
	data := strings.Join(lines, "\n") + "\n"
	renameio.WriteFile(h.path, []byte(data), 0o600)
}
