package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/speechscore/pkg/audio"
)

// DefaultChunkLimit is the per-call text limit of the OpenAI speech endpoint,
// counted in characters.
const DefaultChunkLimit = 4000

// Chunked decorates a Provider so that texts longer than Limit are split,
// synthesized part by part and concatenated in order.
type Chunked struct {
	Provider Provider

	// Limit is the maximum number of runes per upstream call. Zero means
	// DefaultChunkLimit.
	Limit int
}

var _ Provider = (*Chunked)(nil)

// NewChunked wraps p with the given per-call limit.
func NewChunked(p Provider, limit int) *Chunked {
	return &Chunked{Provider: p, Limit: limit}
}

// Synthesize implements Provider. Part files are written next to outPath as
// "<outPath>.partNNN.wav" and are removed on every exit path.
func (c *Chunked) Synthesize(ctx context.Context, req Request, outPath string) error {
	limit := c.Limit
	if limit <= 0 {
		limit = DefaultChunkLimit
	}
	chunks := SplitText(req.Text, limit)
	if len(chunks) <= 1 {
		return c.Provider.Synthesize(ctx, req, outPath)
	}

	parts := make([]string, 0, len(chunks))
	defer func() {
		for _, p := range parts {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				slog.Warn("tts: failed to remove part file", "path", p, "err", err)
			}
		}
	}()

	for i, chunk := range chunks {
		part := fmt.Sprintf("%s.part%03d.wav", outPath, i)
		parts = append(parts, part)
		sub := req
		sub.Text = chunk
		if err := c.Provider.Synthesize(ctx, sub, part); err != nil {
			return fmt.Errorf("tts: chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}

	if _, err := audio.Concat(outPath, parts); err != nil {
		return Local(fmt.Sprintf("concatenate %d chunks", len(parts)), err)
	}
	return nil
}

// SplitText splits text into consecutive chunks of at most limit runes.
// Cuts prefer the last whitespace inside the window; a window without
// whitespace is cut hard. Joining the chunks with single spaces restores the
// original words in order.
func SplitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, strings.TrimSpace(string(runes)))
			break
		}
		cut := limit
		for i := limit; i > 0; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		if chunk := strings.TrimSpace(string(runes[:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	return chunks
}
