package httpdump

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput clears dir and writes every exchange into it as a file.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var out strings.Builder
	for _, k := range keys {
		for _, v := range headers[k] {
			out.WriteString(fmt.Sprintf("%s: %s\n", k, v))
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

// 1: request method
// 2: request url
// 3: request form
// 4: response status
// 5: response url
// 6: response headers in ("Key: Value" format)
// 7: response body
const messageInfoTemplate = `---- REQUEST ----

%s %s

%s

---- RESPONSE ----

%s %s

%s

%s`

type Exchange struct {
	Method string
	URL    string
	Form   url.Values

	// Status is 0 when no response arrived.
	Status      int
	ResponseURL string
	Header      http.Header
	Body        []byte
}

func (e Exchange) String() string {
	status := "no response"
	if e.Status > 0 {
		status = strconv.Itoa(e.Status)
	}
	return fmt.Sprintf(
		messageInfoTemplate,

		e.Method, e.URL,
		e.Form.Encode(),

		status, e.ResponseURL,
		formatHeaders(e.Header),
		string(e.Body),
	)
}
