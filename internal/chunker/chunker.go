// Package chunker splits file content into fixed-size overlapping chunks.
//
// This is deliberately not semantic: no boundary detection, no parsing, no
// regex. Every chunk is exactly chunk_size runes wide (the final chunk may
// be shorter), advancing chunk_size-chunk_overlap runes per step. The
// upstream design rejects AST-aware chunking in favor of this guarantee:
// chunk sizes are always consistent and every character of the source
// appears in at least one chunk.
package chunker

import "strings"

// DefaultChunkSize and DefaultChunkOverlap are the spec's default values,
// expressed in runes (the data model speaks of "chunk_size characters").
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 150
)

// Chunk is a contiguous rune range of a file's content.
type Chunk struct {
	FilePath    string
	Content     string
	ChunkIndex  int
	TotalChunks int
	CharOffset  int // rune offset into the file where this chunk starts
	LineStart   int // 1-based, inclusive
	LineEnd     int // 1-based, inclusive
}

// Config holds the chunking parameters. Zero value is invalid; use
// DefaultConfig or fill in both fields with chunk_overlap < chunk_size.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultConfig returns the spec's default chunk_size=1000, chunk_overlap=150.
func DefaultConfig() Config {
	return Config{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

// ChunkFile splits content into fixed-size overlapping chunks using pure
// arithmetic slicing. An empty file produces zero chunks. A file shorter
// than chunk_size produces exactly one chunk. The final chunk of a longer
// file may be shorter than chunk_size but is always emitted.
func ChunkFile(filePath, content string, cfg Config) []Chunk {
	if cfg.ChunkSize <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 0
	}

	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}

	stride := cfg.ChunkSize - cfg.ChunkOverlap
	lineStarts := buildLineStarts(runes)

	var chunks []Chunk
	for start := 0; start < len(runes); start += stride {
		end := start + cfg.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, Chunk{
			FilePath:   filePath,
			Content:    string(runes[start:end]),
			ChunkIndex: len(chunks),
			CharOffset: start,
			LineStart:  lineNumberAt(lineStarts, start),
			LineEnd:    lineNumberAt(lineStarts, end-1),
		})

		if end == len(runes) {
			break
		}
	}

	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

// buildLineStarts returns the rune offset at which each line begins.
// lineStarts[i] is the offset of the first rune of line i+1 (1-based).
func buildLineStarts(runes []rune) []int {
	starts := []int{0}
	for i, r := range runes {
		if r == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineNumberAt returns the 1-based line number containing rune offset pos.
func lineNumberAt(lineStarts []int, pos int) int {
	// lineStarts is sorted ascending; find the last start <= pos.
	lo, hi := 0, len(lineStarts)-1
	line := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if lineStarts[mid] <= pos {
			line = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return line + 1
}

// Reconstruct concatenates the non-overlapping prefix of each chunk to
// reproduce the original content. Used by tests to verify the no-character-
// lost invariant; not used by the indexing pipeline itself.
func Reconstruct(chunks []Chunk, stride int) string {
	var sb strings.Builder
	for i, c := range chunks {
		runes := []rune(c.Content)
		if i == len(chunks)-1 {
			sb.WriteString(string(runes))
			continue
		}
		n := stride
		if n > len(runes) {
			n = len(runes)
		}
		sb.WriteString(string(runes[:n]))
	}
	return sb.String()
}
