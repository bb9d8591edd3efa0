// Package enhance implements the chunked text enhancement engine.
package enhance

import "strings"

// DefaultChunkCharLimit is the chunk size used when none is configured.
const DefaultChunkCharLimit = 3800

// SplitChunks splits text into chunks on paragraph boundaries. Paragraphs
// are accumulated greedily until adding the next one would exceed the limit.
// A single paragraph larger than the limit becomes its own oversized chunk;
// paragraphs are never split internally. Joining the chunks with a blank
// line reproduces the input.
func SplitChunks(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultChunkCharLimit
	}
	if len(text) <= limit {
		return []string{text}
	}

	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var current strings.Builder

	// An empty paragraph still owes its separator on rejoin, so track
	// whether the chunk holds a paragraph instead of checking its length.
	started := false
	for _, para := range paragraphs {
		if !started {
			current.WriteString(para)
			started = true
			continue
		}
		if current.Len()+2+len(para) > limit {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(para)
			continue
		}
		current.WriteString("\n\n")
		current.WriteString(para)
	}
	if started {
		chunks = append(chunks, current.String())
	}
	return chunks
}
