// Package parser recovers raw file content from a possibly chatty LLM
// reply: fenced code blocks, optional filepath markers, and leading or
// trailing prose around a single-file edit.
package parser

import (
	"regexp"
	"strings"

	"webforge/internal/logging"
)

// Block is one extracted file record. Path is empty when the reply did
// not name a file.
type Block struct {
	Path string
	Body string
}

var filepathMarker = regexp.MustCompile(`^filepath:\s*(\S+)\s*$`)

// conversationalPrefixes mark lines the model added around the code.
var conversationalPrefixes = []string{
	"Here", "The", "This", "Generated", "Note", "I've", "Now", "Finally",
}

// Parse extracts file records from a model reply. Fenced blocks yield
// one record each, in source order; a fence whose first line is a
// `filepath:` marker names the record. A reply without fences becomes a
// single unnamed record holding the trimmed reply.
func Parse(reply string) []Block {
	blocks := parseFences(reply)
	if len(blocks) == 0 {
		trimmed := strings.TrimSpace(reply)
		if trimmed == "" {
			return nil
		}
		return []Block{{Body: trimmed}}
	}
	logging.ParserDebug("extracted %d fenced block(s)", len(blocks))
	return blocks
}

func parseFences(reply string) []Block {
	var blocks []Block
	lines := strings.Split(reply, "\n")

	inFence := false
	var fenceLines []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !inFence {
				inFence = true
				fenceLines = fenceLines[:0]
				continue
			}
			// closing fence
			inFence = false
			blocks = append(blocks, fenceToBlock(fenceLines))
			continue
		}
		if inFence {
			fenceLines = append(fenceLines, line)
		}
	}
	// An unterminated fence still carries content worth keeping.
	if inFence && len(fenceLines) > 0 {
		blocks = append(blocks, fenceToBlock(fenceLines))
	}
	return blocks
}

func fenceToBlock(lines []string) Block {
	if len(lines) > 0 {
		if m := filepathMarker.FindStringSubmatch(strings.TrimSpace(lines[0])); m != nil {
			return Block{Path: m[1], Body: strings.Join(lines[1:], "\n")}
		}
	}
	return Block{Body: strings.Join(lines, "\n")}
}

// Select returns the block whose path matches want, or the first block.
// Returns false when there are no blocks.
func Select(blocks []Block, want string) (Block, bool) {
	if len(blocks) == 0 {
		return Block{}, false
	}
	for _, b := range blocks {
		if b.Path == want {
			return b, true
		}
	}
	return blocks[0], true
}

// CleanEdit prepares a single-file edit reply: extracts the code,
// strips surrounding prose and stray fence markers, and falls back to
// the original body when the reply looks like an explanation rather
// than code.
func CleanEdit(reply, original string) string {
	body := reply
	if blocks := parseFences(reply); len(blocks) > 0 {
		body = blocks[0].Body
	}

	cleaned := stripProse(body)

	// The model sometimes answers with a description of the change
	// instead of the changed file. Keep the original in that case.
	if len(cleaned) < len(original)/2 && !looksLikeCode(cleaned) {
		logging.Parser("reply looks explanatory (%d bytes vs %d); keeping original", len(cleaned), len(original))
		return original
	}
	return cleaned
}

func stripProse(body string) string {
	lines := strings.Split(strings.TrimSpace(body), "\n")

	start := 0
	for start < len(lines) && isProseLine(lines[start]) {
		start++
	}
	end := len(lines)
	for end > start && isProseLine(lines[end-1]) {
		end--
	}

	kept := make([]string, 0, end-start)
	for _, line := range lines[start:end] {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isProseLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "```") {
		return true
	}
	for _, prefix := range conversationalPrefixes {
		if strings.HasPrefix(trimmed, prefix+" ") || trimmed == prefix ||
			strings.HasPrefix(trimmed, prefix+"'") || strings.HasPrefix(trimmed, prefix+":") {
			return true
		}
	}
	return false
}

func looksLikeCode(s string) bool {
	return strings.ContainsAny(s, "{}") ||
		strings.Contains(s, "function") ||
		strings.Contains(s, "class")
}
