package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/waitprep/internal/record"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testOptions(batch int) Options {
	return Options{BatchSize: batch, Delimiter: ',', LazyQuotes: true, Policy: record.DefaultPolicy()}
}

func drain(t *testing.T, sr *SourceReader) []*record.Batch {
	t.Helper()
	var out []*record.Batch
	for {
		b, err := sr.Next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, b)
	}
}

func TestSourceReader_Batches(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("state,zip,dtot\n")
	for i := 0; i < 7; i++ {
		sb.WriteString("MO,65201,5\n")
	}
	path := writeCSV(t, t.TempDir(), "in.csv", sb.String())

	sr, err := OpenSource(path, testOptions(3))
	require.NoError(t, err)
	defer sr.Close() //nolint:errcheck

	batches := drain(t, sr)
	require.Len(t, batches, 3)
	assert.Equal(t, 3, batches[0].Len())
	assert.Equal(t, 3, batches[1].Len())
	assert.Equal(t, 1, batches[2].Len())
	assert.Equal(t, path, batches[0].Source)
	assert.Equal(t, Stats{RowsRead: 7}, sr.Stats())

	_, err = sr.Next(context.Background())
	assert.Equal(t, io.EOF, err, "exhausted reader stays at EOF")
}

func TestSourceReader_ExactMultiple(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "in.csv", "a\n1\n2\n3\n4\n")
	sr, err := OpenSource(path, testOptions(2))
	require.NoError(t, err)
	defer sr.Close() //nolint:errcheck

	batches := drain(t, sr)
	require.Len(t, batches, 2, "no trailing empty batch")
}

func TestSourceReader_TolerantCounts(t *testing.T) {
	input := "state,zip,dtot\n" +
		"MO,65201,5\n" +
		"MO,65201\n" + // short
		",,\n" + // fully empty
		"KS,66002,10,x\n" + // long
		"Missouri,63101,oops\n" // bad number kept as missing
	path := writeCSV(t, t.TempDir(), "in.csv", input)

	sr, err := OpenSource(path, testOptions(100))
	require.NoError(t, err)
	defer sr.Close() //nolint:errcheck

	batches := drain(t, sr)
	require.Len(t, batches, 1)
	b := batches[0]
	require.Equal(t, 2, b.Len())

	st := sr.Stats()
	assert.Equal(t, int64(5), st.RowsRead)
	assert.Equal(t, int64(2), st.Malformed)
	assert.Equal(t, int64(1), st.Empty)
	assert.Equal(t, int64(3), st.Dropped())
	assert.Equal(t, st.RowsRead, int64(b.Len())+st.Dropped())

	assert.True(t, b.Value(1, "dtot").IsMissing())
	assert.Equal(t, "oops", b.Value(1, "dtot").Raw)
}

func TestSourceReader_BrokenQuoteDropsOneLine(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("state,zip,n\nMO,65201,1\nMO,\"65201,5\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&sb, "MO,630%02d,%d\n", i, i)
	}
	path := writeCSV(t, t.TempDir(), "in.csv", sb.String())

	for _, lazy := range []bool{true, false} {
		opts := testOptions(25)
		opts.LazyQuotes = lazy
		sr, err := OpenSource(path, opts)
		require.NoError(t, err)

		rows := 0
		for _, b := range drain(t, sr) {
			rows += b.Len()
		}
		require.NoError(t, sr.Close())

		assert.Equal(t, 101, rows, "lazy=%v", lazy)
		assert.Equal(t, Stats{RowsRead: 102, Malformed: 1}, sr.Stats(), "lazy=%v", lazy)
	}
}

func TestSourceReader_BlankLinesNotCounted(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "in.csv", "state,zip\nMO,65201\n\n\nKS,66002\n")
	sr, err := OpenSource(path, testOptions(10))
	require.NoError(t, err)
	defer sr.Close() //nolint:errcheck

	drain(t, sr)
	assert.Equal(t, Stats{RowsRead: 2}, sr.Stats())
}

func TestSourceReader_TypedColumns(t *testing.T) {
	input := "state,zip,dta,dtot\nMA,02108,2024-03-25 09:30:00,12\nMA,02109,not a date,\n"
	path := writeCSV(t, t.TempDir(), "in.csv", input)

	sr, err := OpenSource(path, testOptions(10))
	require.NoError(t, err)
	defer sr.Close() //nolint:errcheck

	schema := sr.Schema()
	assert.Equal(t, record.Text, schema.Kind("zip"))
	assert.Equal(t, record.Timestamp, schema.Kind("dta"))
	assert.Equal(t, record.Float, schema.Kind("dtot"))

	b := drain(t, sr)[0]
	assert.Equal(t, "02108", b.Value(0, "zip").String())
	ts, ok := b.Value(0, "dta").Time()
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())
	assert.True(t, b.Value(1, "dta").IsMissing(), "unparsable timestamp becomes missing")
	assert.Equal(t, 2, b.Len(), "row is retained")
}

func TestSourceReader_Restart(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "in.csv", "a\n1\n2\n")
	for i := 0; i < 2; i++ {
		sr, err := OpenSource(path, testOptions(10))
		require.NoError(t, err)
		batches := drain(t, sr)
		require.NoError(t, sr.Close())
		require.Len(t, batches, 1)
		assert.Equal(t, 2, batches[0].Len())
	}
}

func TestSourceReader_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := OpenSource(filepath.Join(dir, "none.csv"), testOptions(10))
	require.Error(t, err)

	empty := writeCSV(t, dir, "empty.csv", "")
	_, err = OpenSource(empty, testOptions(10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")

	ok := writeCSV(t, dir, "ok.csv", "a\n1\n")
	_, err = OpenSource(ok, testOptions(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch size")
}

func TestSourceReader_ContextCancelled(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "in.csv", "a\n1\n")
	sr, err := OpenSource(path, testOptions(10))
	require.NoError(t, err)
	defer sr.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sr.Next(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestHeader(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "in.csv", "state,zip\nMO,1\n")
	cols, err := Header(path, Options{Policy: record.DefaultPolicy()})
	require.NoError(t, err)
	assert.Equal(t, []string{"state", "zip"}, cols)
}

func TestReader_MultipleSources(t *testing.T) {
	dir := t.TempDir()
	a := writeCSV(t, dir, "a.csv", "state\nMO\nKS\nMO\n")
	b := writeCSV(t, dir, "b.csv", "zip,state\n65201,MO\nbad,row,here\n")

	r := NewReader([]string{a, b}, testOptions(2))
	defer r.Close() //nolint:errcheck

	var sources []string
	var rows int
	for {
		batch, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sources = append(sources, batch.Source)
		rows += batch.Len()
	}
	assert.Equal(t, []string{a, a, b}, sources)
	assert.Equal(t, 4, rows)
	assert.Equal(t, Stats{RowsRead: 3}, r.Stats()[a])
	assert.Equal(t, Stats{RowsRead: 2, Malformed: 1}, r.Stats()[b])
}

func TestReader_OpenError(t *testing.T) {
	r := NewReader([]string{filepath.Join(t.TempDir(), "none.csv")}, testOptions(2))
	_, err := r.Next(context.Background())
	require.Error(t, err)
	require.NoError(t, r.Close())
}
