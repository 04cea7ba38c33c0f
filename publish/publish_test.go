package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brunobiangulo/depfacts/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs    []published
	err     error
	flushed int
	closed  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject, data})
	return nil
}

func (f *fakeConn) FlushWithContext(ctx context.Context) error {
	f.flushed++
	return nil
}

func (f *fakeConn) Close() { f.closed = true }

func TestPublishSentence(t *testing.T) {
	conn := &fakeConn{}
	p := New(conn, "")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	err := p.PublishSentence(context.Background(), SentenceMessage{
		Document: 7,
		Path:     "/in/notes.txt",
		Sentence: 3,
		Text:     "cake with icing",
		Triples: []extract.Triple{
			{Sentence: 3, Subject: "cake with icing", Predicate: "local:with_icing", Object: "cake"},
		},
	})
	require.NoError(t, err)
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "depfacts.triples.7", conn.msgs[0].subject)

	var got SentenceMessage
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &got))
	assert.Equal(t, int64(7), got.Document)
	assert.Equal(t, 3, got.Sentence)
	assert.True(t, fixed.Equal(got.PublishedAt), got.PublishedAt)
	assert.Len(t, got.Triples, 1)
}

func TestPublishEmptySentenceSendsEmptyArray(t *testing.T) {
	conn := &fakeConn{}
	p := New(conn, "kb.facts")

	require.NoError(t, p.PublishSentence(context.Background(), SentenceMessage{Document: 1}))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &raw))
	assert.Equal(t, []any{}, raw["triples"])
	assert.Equal(t, "kb.facts.1", conn.msgs[0].subject)
}

func TestPublishErrors(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	p := New(conn, "")

	err := p.PublishSentence(context.Background(), SentenceMessage{Sentence: 2})
	assert.ErrorContains(t, err, "publish sentence 2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = New(&fakeConn{}, "").PublishSentence(ctx, SentenceMessage{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNilPublisher(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.PublishSentence(context.Background(), SentenceMessage{}))
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Close())
}

func TestClose(t *testing.T) {
	conn := &fakeConn{}
	require.NoError(t, New(conn, "").Close())
	assert.Equal(t, 1, conn.flushed)
	assert.True(t, conn.closed)
}
