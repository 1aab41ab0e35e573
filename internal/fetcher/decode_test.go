package fetcher

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestCollectCSV_SkipLinesAndBOM(t *testing.T) {
	in := "\xef\xbb\xbfLast Updated,01/02/2025\nName 6,Group ID\n  HASSAN ,101\nOCEAN STAR,102\n"
	rows, err := CollectCSV(context.Background(), strings.NewReader(in), CSVOptions{SkipLines: 1, TrimSpace: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Name 6", "Group ID"}, rows[0])
	assert.Equal(t, []string{"HASSAN", "101"}, rows[1])
}

func TestCollectCSV_BOMWithoutSkip(t *testing.T) {
	rows, err := CollectCSV(context.Background(), strings.NewReader("\xef\xbb\xbfid,name\n1,X\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, "id", rows[0][0])
}

func TestCollectCSV_MalformedRow(t *testing.T) {
	_, err := CollectCSV(context.Background(), strings.NewReader("a,\"b\nc"), CSVOptions{})
	assert.ErrorContains(t, err, "csv: read row")
}

func TestCollectCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CollectCSV(ctx, strings.NewReader("a,b\n"), CSVOptions{})
	assert.Error(t, err)
}

func TestHeaderIndexAndColumn(t *testing.T) {
	idx := HeaderIndex([]string{" Name 6 ", "Group Type", "name 6"})
	assert.Equal(t, 0, Column(idx, "name 6"))
	assert.Equal(t, 1, Column(idx, "missing", "GROUP TYPE"))
	assert.Equal(t, -1, Column(idx, "imo"))
	assert.Equal(t, "", Cell([]string{"a"}, 3))
	assert.Equal(t, "a", Cell([]string{" a "}, 0))
}

type xmlPerson struct {
	XMLName xml.Name
	ID      string `xml:"DATAID"`
	Name    string `xml:"FIRST_NAME"`
}

func TestStreamXML_MultipleElements(t *testing.T) {
	in := `<?xml version="1.0" encoding="ISO-8859-1"?>
<LIST>
  <INDIVIDUALS><INDIVIDUAL><DATAID>1</DATAID><FIRST_NAME>JOS` + "\xc9" + `</FIRST_NAME></INDIVIDUAL></INDIVIDUALS>
  <ENTITIES><ENTITY><DATAID>2</DATAID><FIRST_NAME>ACME</FIRST_NAME></ENTITY></ENTITIES>
  <OTHER><DATAID>3</DATAID></OTHER>
</LIST>`
	outCh, errCh := StreamXML[xmlPerson](context.Background(), strings.NewReader(in), "INDIVIDUAL", "ENTITY")

	var got []xmlPerson
	for p := range outCh {
		got = append(got, p)
	}
	require.NoError(t, <-errCh)
	require.Len(t, got, 2)
	assert.Equal(t, "INDIVIDUAL", got[0].XMLName.Local)
	assert.Equal(t, "JOSÉ", got[0].Name)
	assert.Equal(t, "ENTITY", got[1].XMLName.Local)
	assert.Equal(t, "2", got[1].ID)
}

func TestStreamXML_Malformed(t *testing.T) {
	outCh, errCh := StreamXML[xmlPerson](context.Background(), strings.NewReader("<LIST><INDIVIDUAL>"), "INDIVIDUAL")
	for range outCh {
	}
	assert.Error(t, <-errCh)
}

type jsonEntity struct {
	ID     string `json:"id"`
	Schema string `json:"schema"`
}

func TestDecodeJSONLines(t *testing.T) {
	in := "{\"id\":\"a\",\"schema\":\"Vessel\"}\n\n  {\"id\":\"b\",\"schema\":\"Person\"}\n"
	outCh, errCh := DecodeJSONLines[jsonEntity](context.Background(), strings.NewReader(in))

	var got []jsonEntity
	for e := range outCh {
		got = append(got, e)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, []jsonEntity{{"a", "Vessel"}, {"b", "Person"}}, got)
}

func TestDecodeJSONLines_BadLine(t *testing.T) {
	outCh, errCh := DecodeJSONLines[jsonEntity](context.Background(), strings.NewReader("{\"id\":\"a\"}\n{oops\n"))
	n := 0
	for range outCh {
		n++
	}
	assert.Equal(t, 1, n)
	assert.ErrorContains(t, <-errCh, "line 2")
}

func buildXLSX(t *testing.T, rows [][]string) *xlsx.File {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Vessels")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, v := range rowData {
			row.AddCell().SetString(v)
		}
	}
	return f
}

func TestReadXLSX_Binary(t *testing.T) {
	f := buildXLSX(t, [][]string{{"Vessel name", "IMO"}, {"OCEAN STAR", "9123456"}})
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := ReadXLSX(buf.Bytes(), XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"OCEAN STAR", "9123456"}, rows[1])

	_, err = ReadXLSX(buf.Bytes(), XLSXOptions{SheetName: "Missing"})
	assert.Error(t, err)
	_, err = ReadXLSX(buf.Bytes(), XLSXOptions{SheetIndex: 4})
	assert.Error(t, err)
}

func TestReadXLSXFile(t *testing.T) {
	f := buildXLSX(t, [][]string{{"name", "type"}, {"ACME TRADING", "company"}})
	path := filepath.Join(t.TempDir(), "queries.xlsx")
	require.NoError(t, f.Save(path))

	rows, err := ReadXLSXFile(path, XLSXOptions{SheetName: "Vessels"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME TRADING", "company"}, rows[1])
}

func TestReadXLSX_NotAWorkbook(t *testing.T) {
	_, err := ReadXLSX([]byte("not a workbook"), XLSXOptions{})
	assert.Error(t, err)
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestUnzip(t *testing.T) {
	plain := []byte("id,name\n")
	out, err := Unzip(plain, "")
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	single := zipOf(t, map[string]string{"sdn.csv": "1,X\n"})
	assert.True(t, IsZIP(single))
	out, err = Unzip(single, "")
	require.NoError(t, err)
	assert.Equal(t, "1,X\n", string(out))

	multi := zipOf(t, map[string]string{"data/sdn.csv": "1,X\n", "readme.txt": "hi"})
	_, err = Unzip(multi, "")
	assert.ErrorContains(t, err, "exactly 1 file")

	out, err = Unzip(multi, "sdn.csv")
	require.NoError(t, err)
	assert.Equal(t, "1,X\n", string(out))

	_, err = Unzip(multi, "missing.csv")
	assert.ErrorContains(t, err, "not found")
}
