// Package message extracts the plain-text portion of raw archived message
// bodies.
package message

import (
	"errors"
	"fmt"
	"io"
	"strings"

	gomessage "github.com/emersion/go-message"
	// Registers decoders for the non-UTF-8 charsets common in old archives.
	_ "github.com/emersion/go-message/charset"

	"github.com/JakeFAU/archive-harvester/internal/archive"
)

const (
	// DefaultMarker identifies a body whose text part wraps a second copy of
	// the whole message, headers included.
	DefaultMarker   = "X-Google-Groups:"
	defaultMaxDepth = 8
	plainText       = "text/plain"
)

var errFound = errors.New("text part found")

// Config tunes the parser.
type Config struct {
	// Marker is the header token that flags a nested message.
	Marker string
	// MaxDepth bounds how many nested copies are unwrapped.
	MaxDepth int
}

// Parser extracts plain text from raw messages.
type Parser struct {
	marker   string
	maxDepth int
}

// New returns a Parser. Zero fields take defaults.
func New(cfg Config) *Parser {
	if cfg.Marker == "" {
		cfg.Marker = DefaultMarker
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	return &Parser{marker: cfg.Marker, maxDepth: cfg.MaxDepth}
}

// ExtractText returns the first text/plain part of raw. When that text itself
// carries the nested-message marker it is parsed again, until a text part
// without the marker is reached. Errors wrap archive.ErrNoTextPart.
func (p *Parser) ExtractText(raw string) (string, error) {
	text := raw
	for depth := 0; depth <= p.maxDepth; depth++ {
		next, err := firstPlainText(text)
		if err != nil {
			return "", err
		}
		if !strings.Contains(next, p.marker) {
			return next, nil
		}
		if next == text {
			return "", fmt.Errorf("%w: nested message does not unwrap", archive.ErrNoTextPart)
		}
		text = strings.TrimLeft(next, "\r\n")
	}
	return "", fmt.Errorf("%w: more than %d nested messages", archive.ErrNoTextPart, p.maxDepth)
}

func firstPlainText(raw string) (string, error) {
	entity, err := gomessage.Read(strings.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) && !gomessage.IsUnknownEncoding(err) {
		return "", fmt.Errorf("%w: parse message: %v", archive.ErrNoTextPart, err)
	}

	var text string
	walkErr := entity.Walk(func(_ []int, part *gomessage.Entity, err error) error {
		// An unknown charset or encoding leaves the part readable as is.
		if err != nil && !gomessage.IsUnknownCharset(err) && !gomessage.IsUnknownEncoding(err) {
			return err
		}
		mediaType, _, _ := part.Header.ContentType()
		if mediaType != "" && !strings.EqualFold(mediaType, plainText) {
			return nil
		}
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			return fmt.Errorf("read text part: %w", readErr)
		}
		text = string(body)
		return errFound
	})
	switch {
	case errors.Is(walkErr, errFound):
		return text, nil
	case walkErr != nil:
		return "", fmt.Errorf("%w: %v", archive.ErrNoTextPart, walkErr)
	default:
		return "", archive.ErrNoTextPart
	}
}
