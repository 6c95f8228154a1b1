package fetcher

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readAll drains a CSVReader, returning good records and the malformed count.
func readAll(t *testing.T, r *CSVReader) ([][]string, int) {
	t.Helper()
	var rows [][]string
	malformed := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return rows, malformed
		}
		if IsMalformed(err) {
			malformed++
			continue
		}
		require.NoError(t, err)
		rows = append(rows, rec)
	}
}

func TestCSVReader_Basic(t *testing.T) {
	r := NewCSVReader(strings.NewReader("a,b,c\n1,2,3\n4,5,6\n"), CSVOptions{})
	header, err := r.Header()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, header)

	rows, malformed := readAll(t, r)
	assert.Equal(t, 0, malformed)
	assert.Equal(t, [][]string{{"1", "2", "3"}, {"4", "5", "6"}}, rows)
}

func TestCSVReader_PipeDelimited(t *testing.T) {
	r := NewCSVReader(strings.NewReader("a|b|c\n1|2|3\n"), CSVOptions{Delimiter: '|'})
	rows, _ := readAll(t, r)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"1", "2", "3"}, rows[0])
}

func TestCSVReader_ImplicitHeader(t *testing.T) {
	r := NewCSVReader(strings.NewReader("name,age\nalice,30\n"), CSVOptions{})
	rows, _ := readAll(t, r)
	require.Len(t, rows, 1, "header must not be returned as data")
	assert.Equal(t, []string{"alice", "30"}, rows[0])
}

func TestCSVReader_WrongFieldCount(t *testing.T) {
	input := "state,zip,dtot\nMO,65201,5\nMO,65201\nKS,66002,10,extra\nMO,63101,40\n"
	r := NewCSVReader(strings.NewReader(input), CSVOptions{})

	var lines []int
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		var me *MalformedError
		if errors.As(err, &me) {
			lines = append(lines, me.Line)
			continue
		}
		require.NoError(t, err)
		rows = append(rows, rec)
	}
	assert.Equal(t, []int{3, 4}, lines)
	assert.Equal(t, [][]string{{"MO", "65201", "5"}, {"MO", "63101", "40"}}, rows)
}

func TestCSVReader_BareQuote(t *testing.T) {
	input := "a,b,c\n1,hello \"world\",3\n4,5,6\n"

	strict := NewCSVReader(strings.NewReader(input), CSVOptions{})
	rows, malformed := readAll(t, strict)
	assert.Equal(t, 1, malformed)
	assert.Equal(t, [][]string{{"4", "5", "6"}}, rows, "reading continues after a bad line")

	lazy := NewCSVReader(strings.NewReader(input), CSVOptions{LazyQuotes: true})
	rows, malformed = readAll(t, lazy)
	assert.Equal(t, 0, malformed)
	assert.Len(t, rows, 2)
}

func TestCSVReader_UnterminatedQuote(t *testing.T) {
	input := "a,b\n1,2\n3,\"never closed\n5,6\n"
	for _, lazy := range []bool{false, true} {
		r := NewCSVReader(strings.NewReader(input), CSVOptions{LazyQuotes: lazy})
		rows, malformed := readAll(t, r)
		assert.Equal(t, [][]string{{"1", "2"}, {"5", "6"}}, rows, "lazy=%v", lazy)
		assert.Equal(t, 1, malformed, "lazy=%v", lazy)
	}
}

func TestCSVReader_UnterminatedQuoteLineNumber(t *testing.T) {
	input := "state,zip,n\nMO,65201,1\nMO,\"65201,5\nMO,63001,2\nKS,66002,3\n"
	r := NewCSVReader(strings.NewReader(input), CSVOptions{LazyQuotes: true})

	_, err := r.Read()
	require.NoError(t, err)
	_, err = r.Read()
	var me *MalformedError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 3, me.Line)

	rows, malformed := readAll(t, r)
	assert.Equal(t, 0, malformed)
	assert.Equal(t, [][]string{{"MO", "63001", "2"}, {"KS", "66002", "3"}}, rows)
}

func TestCSVReader_UnterminatedQuoteSpanCapped(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("a,b\n\"open,1\n")
	for i := 0; i < 10; i++ {
		sb.WriteString("x,2\n")
	}
	r := NewCSVReader(strings.NewReader(sb.String()), CSVOptions{LazyQuotes: true, MaxRecordLines: 3})
	rows, malformed := readAll(t, r)
	assert.Equal(t, 1, malformed)
	assert.Len(t, rows, 10)
}

func TestCSVReader_MultilineField(t *testing.T) {
	input := "note,n\n\"first\nsecond\",1\n\"say \"\"hi\"\"\",2\n3rd,3\n"
	r := NewCSVReader(strings.NewReader(input), CSVOptions{LazyQuotes: true})
	rows, malformed := readAll(t, r)
	assert.Equal(t, 0, malformed)
	assert.Equal(t, [][]string{{"first\nsecond", "1"}, {`say "hi"`, "2"}, {"3rd", "3"}}, rows)
}

func TestCSVReader_MultilineWrongWidth(t *testing.T) {
	// The quote opened on line 2 closes on line 3, but the joined record is
	// too wide, so line 2 alone is dropped.
	input := "a,b\n1,\"open\n\",2\n5,6\n"
	r := NewCSVReader(strings.NewReader(input), CSVOptions{LazyQuotes: true})
	rows, malformed := readAll(t, r)
	assert.Equal(t, 2, malformed)
	assert.Equal(t, [][]string{{"5", "6"}}, rows)
}

func TestCSVReader_BlankLinesSkipped(t *testing.T) {
	r := NewCSVReader(strings.NewReader("a,b\n1,2\n\n\r\n3,4\n\n"), CSVOptions{})
	rows, malformed := readAll(t, r)
	assert.Equal(t, 0, malformed)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, rows)
}

func TestCSVReader_NoTrailingNewline(t *testing.T) {
	r := NewCSVReader(strings.NewReader("a,b\r\n1,2\r\n3,4"), CSVOptions{})
	rows, _ := readAll(t, r)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, rows)
}

func TestCSVReader_TrimSpace(t *testing.T) {
	r := NewCSVReader(strings.NewReader(" a , b \n 1 , 2 \n"), CSVOptions{TrimSpace: true})
	header, err := r.Header()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, header)
	rows, _ := readAll(t, r)
	assert.Equal(t, [][]string{{"1", "2"}}, rows)
}

func TestCSVReader_Comment(t *testing.T) {
	input := "# exported 2024-03-25\na,b\n1,2\n# another comment\n3,4\n"
	r := NewCSVReader(strings.NewReader(input), CSVOptions{Comment: '#'})
	rows, _ := readAll(t, r)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, rows)
}

func TestCSVReader_Empty(t *testing.T) {
	r := NewCSVReader(strings.NewReader(""), CSVOptions{})
	_, err := r.Header()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")

	_, err = NewCSVReader(strings.NewReader(""), CSVOptions{}).Read()
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestMalformedError(t *testing.T) {
	err := &MalformedError{Line: 7, Reason: "expected 3 fields, got 2"}
	assert.Equal(t, "csv: malformed record at line 7: expected 3 fields, got 2", err.Error())
	assert.True(t, IsMalformed(err))
	assert.False(t, IsMalformed(io.ErrUnexpectedEOF))
}
