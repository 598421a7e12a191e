// Package codec implements the binary framing of a path graph.
//
// The framing is a pre-order walk of every root:
//
//	File := rootCount:int32 Node*
//	Node := path:str name:str kind:str modifiedAtMillis:int64 sizeBytes:int64
//	        childCount:int32 Node*childCount
//
// where str is a uint16 byte length followed by UTF-8 bytes and all integers
// are big-endian. Parent paths are not stored; they are implied by nesting.
// Compression is applied by the caller.
package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/Ning0612/Diskgraph/internal/domain"
)

// ErrStringTooLong is returned when a path or name does not fit a uint16 length
var ErrStringTooLong = errors.New("string too long to encode")

// maxPrealloc bounds slice preallocation from untrusted counts
const maxPrealloc = 1024

// Marshal encodes g into a byte slice
func Marshal(g *domain.PathGraph) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a graph from data
func Unmarshal(data []byte) (*domain.PathGraph, error) {
	return Decode(bytes.NewReader(data))
}

// Encode writes g to w
func Encode(w io.Writer, g *domain.PathGraph) error {
	if g == nil {
		return fmt.Errorf("%w: nil graph", domain.ErrInvalidGraph)
	}
	if len(g.Roots) > math.MaxInt32 {
		return fmt.Errorf("%w: too many roots", domain.ErrInvalidGraph)
	}

	e := &encoder{w: bufio.NewWriter(w), records: g.Records}
	e.int32(int32(len(g.Roots)))
	for _, root := range g.Roots {
		if err := e.node(root); err != nil {
			return err
		}
	}
	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

type encoder struct {
	w       *bufio.Writer
	records map[string]*domain.PathRecord
	scratch [8]byte
	err     error
}

func (e *encoder) node(path string) error {
	r, ok := e.records[path]
	if !ok {
		return fmt.Errorf("%w: missing record for %s", domain.ErrInvalidGraph, path)
	}
	if len(r.Children) > math.MaxInt32 {
		return fmt.Errorf("%w: too many children under %s", domain.ErrInvalidGraph, path)
	}

	if err := e.string(path); err != nil {
		return err
	}
	if err := e.string(r.Name); err != nil {
		return err
	}
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: %s has kind %d", domain.ErrUnknownKind, path, r.Kind)
	}
	if err := e.string(r.Kind.Code()); err != nil {
		return err
	}
	e.int64(r.ModifiedAtMillis)
	e.int64(r.SizeBytes)
	e.int32(int32(len(r.Children)))

	for _, child := range r.Children {
		if err := e.node(child); err != nil {
			return err
		}
	}
	return e.err
}

func (e *encoder) string(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
	}
	if e.err != nil {
		return e.err
	}
	binary.BigEndian.PutUint16(e.scratch[:2], uint16(len(s)))
	if _, e.err = e.w.Write(e.scratch[:2]); e.err != nil {
		return e.err
	}
	_, e.err = e.w.WriteString(s)
	return e.err
}

func (e *encoder) int32(v int32) {
	if e.err != nil {
		return
	}
	binary.BigEndian.PutUint32(e.scratch[:4], uint32(v))
	_, e.err = e.w.Write(e.scratch[:4])
}

func (e *encoder) int64(v int64) {
	if e.err != nil {
		return
	}
	binary.BigEndian.PutUint64(e.scratch[:8], uint64(v))
	_, e.err = e.w.Write(e.scratch[:8])
}

// Decode reads a graph from r. The whole stream must be consumed by the
// framing; any malformed or trailing input yields domain.ErrCacheCorrupt.
func Decode(r io.Reader) (*domain.PathGraph, error) {
	d := &decoder{r: bufio.NewReader(r)}

	count, err := d.count()
	if err != nil {
		return nil, err
	}

	g := domain.NewPathGraph()
	g.Roots = make([]string, 0, min(count, maxPrealloc))
	d.records = g.Records
	for i := 0; i < count; i++ {
		path, err := d.node("")
		if err != nil {
			return nil, err
		}
		g.Roots = append(g.Roots, path)
	}

	if _, err := d.r.ReadByte(); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("%w: trailing data", domain.ErrCacheCorrupt)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err)
	}
	return g, nil
}

type decoder struct {
	r       *bufio.Reader
	records map[string]*domain.PathRecord
	scratch [8]byte
}

// node decodes one node and its subtree, returning its path
func (d *decoder) node(parent string) (string, error) {
	path, err := d.string()
	if err != nil {
		return "", err
	}
	name, err := d.string()
	if err != nil {
		return "", err
	}
	code, err := d.string()
	if err != nil {
		return "", err
	}
	kind, err := domain.ParseKind(code)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrCacheCorrupt, path, err)
	}
	mtime, err := d.int64()
	if err != nil {
		return "", err
	}
	size, err := d.int64()
	if err != nil {
		return "", err
	}
	count, err := d.count()
	if err != nil {
		return "", err
	}

	if _, dup := d.records[path]; dup {
		return "", fmt.Errorf("%w: duplicate path %s", domain.ErrCacheCorrupt, path)
	}
	record := &domain.PathRecord{
		ParentPath:       parent,
		Kind:             kind,
		Name:             name,
		ModifiedAtMillis: mtime,
		SizeBytes:        size,
	}
	d.records[path] = record

	if count > 0 {
		record.Children = make([]string, 0, min(count, maxPrealloc))
	}
	for i := 0; i < count; i++ {
		child, err := d.node(path)
		if err != nil {
			return "", err
		}
		record.Children = append(record.Children, child)
	}
	return path, nil
}

func (d *decoder) read(n int) ([]byte, error) {
	buf := d.scratch[:n]
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, truncated(err)
	}
	return buf, nil
}

func (d *decoder) string() (string, error) {
	buf, err := d.read(2)
	if err != nil {
		return "", err
	}
	s := make([]byte, binary.BigEndian.Uint16(buf))
	if _, err := io.ReadFull(d.r, s); err != nil {
		return "", truncated(err)
	}
	return string(s), nil
}

func (d *decoder) count() (int, error) {
	buf, err := d.read(4)
	if err != nil {
		return 0, err
	}
	n := int32(binary.BigEndian.Uint32(buf))
	if n < 0 {
		return 0, fmt.Errorf("%w: negative count %d", domain.ErrCacheCorrupt, n)
	}
	return int(n), nil
}

func (d *decoder) int64() (int64, error) {
	buf, err := d.read(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf)), nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: unexpected end of data", domain.ErrCacheCorrupt)
	}
	return fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err)
}
