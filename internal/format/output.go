// Package format renders command results as JSON or EDN.
package format

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

const (
	JSON = "json"
	EDN  = "edn"
)

// Write renders v in the named format. The empty format is JSON.
func Write(w io.Writer, v any, format string, pretty bool) error {
	switch format {
	case "", JSON:
		return WriteJSON(w, v, pretty)
	case EDN:
		return WriteEDN(w, v, pretty)
	default:
		return fmt.Errorf("unknown format: %s (want json or edn)", format)
	}
}

// WriteJSON writes v as a single JSON document followed by a newline.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var (
		b   []byte
		err error
	)
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
