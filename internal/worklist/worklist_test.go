package worklist

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "companies.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func drain(t *testing.T, r *Reader) []Item {
	t.Helper()
	var out []Item
	for {
		item, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, item)
	}
}

func TestReader_StreamsRowsInOrder(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, "kvk_number,company_name\n81234567,Acme B.V.\n00000001,First Co\n")
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, []Item{
		{RawNumber: "81234567", Name: "Acme B.V."},
		{RawNumber: "00000001", Name: "First Co"},
	}, drain(t, r))
}

func TestReader_LocatesColumnsByHeader(t *testing.T) {
	t.Parallel()

	// Column order and case differ from the canonical export.
	path := writeCSV(t, "city,Company_Name,KVK_NUMBER\nAmsterdam,Acme,81234567\n")
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, []Item{{RawNumber: "81234567", Name: "Acme"}}, drain(t, r))
}

func TestReader_TrimsWhitespace(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, "kvk_number,company_name\n 81234567 , Acme \n")
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, []Item{{RawNumber: "81234567", Name: "Acme"}}, drain(t, r))
}

func TestReader_ToleratesShortRows(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, "kvk_number,company_name\n81234567\n81234568,Globex\n")
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, []Item{
		{RawNumber: "81234567"},
		{RawNumber: "81234568", Name: "Globex"},
	}, drain(t, r))
}

func TestOpen_MissingColumn(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, "kvk_number,address\n81234567,Somewhere 1\n")
	_, err := Open(path)
	require.ErrorContains(t, err, "company_name")
}

func TestOpen_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Open(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
}

func TestOpen_EmptyFile(t *testing.T) {
	t.Parallel()

	_, err := Open(writeCSV(t, ""))
	require.Error(t, err)
}
