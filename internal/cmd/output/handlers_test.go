package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type record struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type recordPrinter struct{}

func (p *recordPrinter) Header(w io.Writer, count int) {
	_, _ = fmt.Fprintf(w, "Found %d:\n", count)
}

func (p *recordPrinter) Item(w io.Writer, r record) error {
	_, _ = fmt.Fprintf(w, "#%d %s\n", r.ID, r.Name)
	return nil
}

func (p *recordPrinter) Footer(w io.Writer, count int) {}

func TestJSONHandler(t *testing.T) {
	t.Parallel()

	t.Run("results", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		h := NewJSONHandler[record](&buf, 2)

		require.NoError(t, h.HandleResults(record{ID: 1, Name: "a"}, record{ID: 2, Name: "b"}))

		var payload ResultsPayload[record]
		require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
		require.Len(t, payload.Results, 2)
		assert.Equal(t, "b", payload.Results[1].Name)
	})

	t.Run("empty results marshal as an empty list", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		h := NewJSONHandler[record](&buf, 0)

		require.NoError(t, h.HandleResults())
		assert.JSONEq(t, `{"results":[]}`, buf.String())
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		h := NewJSONHandler[record](&buf, 0)

		require.NoError(t, h.HandleError(fmt.Errorf("boom")))
		assert.JSONEq(t, `{"error":"boom"}`, buf.String())
	})
}

func TestYAMLHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewYAMLHandler[record](&buf, 2)

	require.NoError(t, h.HandleResult(record{ID: 7, Name: "seven"}))

	var payload ResultPayload[record]
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &payload))
	assert.Equal(t, 7, payload.Result.ID)
	assert.Equal(t, "seven", payload.Result.Name)
}

func TestTextHandler(t *testing.T) {
	t.Parallel()

	t.Run("prints header and items", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		h := NewTextHandler[record](&buf, &recordPrinter{})

		require.NoError(t, h.HandleResults(record{ID: 1, Name: "a"}, record{ID: 2, Name: "b"}))
		assert.Equal(t, "Found 2:\n#1 a\n#2 b\n", buf.String())
	})

	t.Run("empty results", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		h := NewTextHandler[record](&buf, &recordPrinter{})

		require.NoError(t, h.HandleResults())
		assert.Equal(t, "No items found\n", buf.String())
	})

	t.Run("errors pass through", func(t *testing.T) {
		t.Parallel()

		h := NewTextHandler[record](io.Discard, &recordPrinter{})

		err := fmt.Errorf("boom")
		assert.Equal(t, err, h.HandleError(err))
	})
}
