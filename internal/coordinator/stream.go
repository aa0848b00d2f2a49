package coordinator

import (
	"context"

	"github.com/JakeFAU/archive-harvester/internal/archive"
)

// Stream is a pull-based sequence of the messages on one page, in page index
// order. Each Next issues at most one remote fetch. A Stream cannot be
// rewound; call MessagesForPage again to start over.
type Stream struct {
	c        *Coordinator
	coord    archive.Coordinate
	index    archive.PageIndex
	resolved bool
	pos      int
	current  archive.Message
	err      error
	done     bool
}

// Next advances to the next message. It returns false when the page is
// exhausted or a page-level failure occurred; check Err to tell them apart.
func (s *Stream) Next(ctx context.Context) bool {
	if s.done {
		return false
	}
	if err := ctx.Err(); err != nil {
		s.fail(err)
		return false
	}
	if !s.resolved {
		index, err := s.c.resolveIndex(ctx, s.coord)
		if err != nil {
			s.fail(err)
			return false
		}
		s.index = index
		s.resolved = true
	}
	if s.pos >= len(s.index) {
		s.done = true
		return false
	}
	id := s.index[s.pos]
	s.pos++
	s.current = s.c.resolveBody(ctx, s.coord, id)
	return true
}

// Message returns the message produced by the last successful Next. A non-nil
// Err on the message means its body could not be fetched and Body is empty.
func (s *Stream) Message() archive.Message {
	return s.current
}

// Err returns the page-level failure that ended the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// Index returns the resolved page index, or nil before the first Next.
func (s *Stream) Index() archive.PageIndex {
	return s.index.Clone()
}

func (s *Stream) fail(err error) {
	s.err = err
	s.done = true
	s.current = archive.Message{}
}

// Collect drains the stream into a slice.
func Collect(ctx context.Context, s *Stream) ([]archive.Message, error) {
	var out []archive.Message
	for s.Next(ctx) {
		out = append(out, s.Message())
	}
	return out, s.Err()
}
