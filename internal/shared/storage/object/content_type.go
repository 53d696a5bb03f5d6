package object

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
)

// Content types of the supported dataset formats.
const (
	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ContentType names the media type stored with an upload. Dataset formats
// are known by extension since sniffing reports CSV as text/plain and XLSX
// as a zip archive; anything else falls back to sniffing head.
func ContentType(fileName string, head []byte) string {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".csv":
		return ContentTypeCSV
	case ".xlsx":
		return ContentTypeXLSX
	}
	return http.DetectContentType(head)
}

// Sniff reads up to 512 bytes of r to determine the content type and returns
// a reader that replays them ahead of the rest.
func Sniff(fileName string, r io.Reader) (io.Reader, string, error) {
	var head [512]byte
	n, err := io.ReadFull(r, head[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, "", fmt.Errorf("read sniff: %w", err)
	}
	return io.MultiReader(bytes.NewReader(head[:n]), r), ContentType(fileName, head[:n]), nil
}
