package webhook

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// DecodeSSE reads the external service's event stream, invoking onDelta for
// each content fragment and returning the accumulated text. Fragments are
// "data: " lines carrying either the [DONE] sentinel or a JSON object with a
// "content" or "delta" field. Lines may split across arbitrary read
// boundaries; the scanner buffers partials until a newline arrives.
func DecodeSSE(body io.Reader, onDelta func(string)) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var full strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var frag struct {
			Content string `json:"content"`
			Delta   string `json:"delta"`
		}
		if err := json.Unmarshal([]byte(data), &frag); err != nil {
			// Skip malformed fragments.
			continue
		}
		delta := frag.Content
		if delta == "" {
			delta = frag.Delta
		}
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	return full.String(), scanner.Err()
}
