package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"restruct/internal/diag"
	"restruct/internal/disasm"
)

// FuncRecord summarizes the structuring of one function.
type FuncRecord struct {
	Name       string            `json:"name" msgpack:"name"`
	Addr       uint64            `json:"addr" msgpack:"addr"`
	Size       uint64            `json:"size" msgpack:"size"`
	Insts      int               `json:"insts" msgpack:"insts"`
	Blocks     int               `json:"blocks" msgpack:"blocks"`
	Structured bool              `json:"structured" msgpack:"structured"`
	Root       string            `json:"root,omitempty" msgpack:"root,omitempty"` // kind of the root region
	Steps      int               `json:"steps" msgpack:"steps"`
	Applied    map[string]int    `json:"applied,omitempty" msgpack:"applied,omitempty"`
	Duplicated int               `json:"duplicated,omitempty" msgpack:"duplicated,omitempty"`
	Normalized int               `json:"normalized,omitempty" msgpack:"normalized,omitempty"`
	Residual   int               `json:"residual" msgpack:"residual"` // nodes left besides entry and exit
	Exhausted  bool              `json:"exhausted,omitempty" msgpack:"exhausted,omitempty"`
	Diags      []diag.Diag       `json:"diags,omitempty" msgpack:"diags,omitempty"`
	Error      string            `json:"error,omitempty" msgpack:"error,omitempty"`
	Calls      []disasm.CallEdge `json:"calls,omitempty" msgpack:"calls,omitempty"`
}

// Format selects the record encoding.
type Format string

const (
	FormatJSONL   Format = "jsonl"
	FormatMsgpack Format = "msgpack"
)

// ErrUnknownFormat is returned for record formats other than jsonl and msgpack.
var ErrUnknownFormat = errors.New("output: unknown record format")

// ParseFormat validates a format name. The empty string selects JSONL.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSONL, "":
		return FormatJSONL, nil
	case FormatMsgpack:
		return FormatMsgpack, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// RecordFile returns the file name records are written to:
// functions.jsonl or functions.msgpack, with a .zst suffix when compressed.
func RecordFile(format Format, compress bool) string {
	name := "functions." + string(format)
	if compress {
		name += ".zst"
	}
	return name
}

type encoder interface {
	Encode(v any) error
}

// RecordWriter streams FuncRecords to a file. Safe for concurrent use.
type RecordWriter struct {
	mu   sync.Mutex
	path string
	f    *os.File
	zw   *zstd.Encoder
	enc  encoder
	n    int
}

// CreateRecords creates dir/RecordFile(format, compress) and returns a
// writer for it.
func CreateRecords(dir string, format Format, compress bool) (*RecordWriter, error) {
	if format == "" {
		format = FormatJSONL
	}
	if format != FormatJSONL && format != FormatMsgpack {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	path := filepath.Join(dir, RecordFile(format, compress))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("output: create %s: %w", path, err)
	}
	w := &RecordWriter{path: path, f: f}

	var sink io.Writer = f
	if compress {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("output: zstd %s: %w", path, err)
		}
		w.zw = zw
		sink = zw
	}
	switch format {
	case FormatMsgpack:
		w.enc = msgpack.NewEncoder(sink)
	default:
		w.enc = json.NewEncoder(sink)
	}
	return w, nil
}

// Path returns the file being written.
func (w *RecordWriter) Path() string { return w.path }

// Count returns the number of records written so far.
func (w *RecordWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Write appends one record.
func (w *RecordWriter) Write(rec *FuncRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("output: write %s: %w", w.path, err)
	}
	w.n++
	return nil
}

// Close flushes the compressor, if any, and closes the file.
func (w *RecordWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	if w.zw != nil {
		errs = append(errs, w.zw.Close())
	}
	errs = append(errs, w.f.Close())
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("output: close %s: %w", w.path, err)
	}
	return nil
}

// ReadRecords reads back a record file. The encoding is chosen from the file
// name as produced by RecordFile.
func ReadRecords(path string) ([]FuncRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("output: read %s: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	var r io.Reader = f
	if strings.HasSuffix(name, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("output: zstd %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
		name = strings.TrimSuffix(name, ".zst")
	}

	var records []FuncRecord
	switch filepath.Ext(name) {
	case ".msgpack":
		dec := msgpack.NewDecoder(r)
		for {
			var rec FuncRecord
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			if err != nil {
				return records, fmt.Errorf("output: read %s: record %d: %w", path, len(records)+1, err)
			}
			records = append(records, rec)
		}
	case ".jsonl":
		dec := json.NewDecoder(r)
		for dec.More() {
			var rec FuncRecord
			if err := dec.Decode(&rec); err != nil {
				return records, fmt.Errorf("output: read %s: line %d: %w", path, len(records)+1, err)
			}
			records = append(records, rec)
		}
		return records, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}
