package chunker

import "strings"

// DefaultSize is the chunk size, in bytes, used for reformatting requests.
const DefaultSize = 4000

type Chunk struct {
	Index int
	Text  string
}

// Split breaks text into whitespace-delimited chunks of at most maxSize bytes,
// joining tokens with a single space. Token order is preserved and no token is
// split: a token longer than maxSize becomes its own oversized chunk.
func Split(text string, maxSize int) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var (
		chunks  []Chunk
		current []string
		length  int
	)
	flush := func() {
		chunks = append(chunks, Chunk{Index: len(chunks), Text: strings.Join(current, " ")})
	}

	for _, w := range words {
		if len(current) > 0 && length+len(w)+1 > maxSize {
			flush()
			current = current[:0]
			length = 0
		}
		if len(current) == 0 {
			current = append(current, w)
			length = len(w)
			continue
		}
		current = append(current, w)
		length += len(w) + 1
	}
	if len(current) > 0 {
		flush()
	}

	return chunks
}
