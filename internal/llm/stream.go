package llm

import (
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"
)

// ChunkStream yields completion text in arrival order. Recv returns io.EOF
// once the upstream finished.
type ChunkStream interface {
	Recv() (string, error)
	Close() error
}

// SliceStream replays fixed chunks. It backs non-streaming upstream calls
// and other synthetic streams.
func SliceStream(chunks ...string) ChunkStream {
	return &sliceStream{chunks: chunks}
}

type sliceStream struct {
	chunks []string
	closed bool
}

func (s *sliceStream) Recv() (string, error) {
	if s.closed || len(s.chunks) == 0 {
		return "", io.EOF
	}
	next := s.chunks[0]
	s.chunks = s.chunks[1:]
	return next, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

type openaiStream struct {
	stream *openai.ChatCompletionStream
}

// Recv skips deltas that carry no content (role announcements, usage frames).
func (s *openaiStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if content := resp.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}
}

func (s *openaiStream) Close() error {
	return s.stream.Close()
}
