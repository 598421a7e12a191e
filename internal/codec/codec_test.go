package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/Diskgraph/internal/domain"
	"github.com/Ning0612/Diskgraph/internal/testutil"
)

func singleFile() *domain.PathGraph {
	g := domain.NewPathGraph()
	g.Roots = []string{"/r"}
	g.Records["/r"] = &domain.PathRecord{
		Kind:             domain.KindFile,
		Name:             "r",
		ModifiedAtMillis: 1,
		SizeBytes:        2,
	}
	return g
}

var singleFileBytes = []byte{
	0, 0, 0, 1, // roots
	0, 2, '/', 'r', // path
	0, 1, 'r', // name
	0, 1, 'F', // kind
	0, 0, 0, 0, 0, 0, 0, 1, // mtime
	0, 0, 0, 0, 0, 0, 0, 2, // size
	0, 0, 0, 0, // children
}

func TestMarshal_KnownFraming(t *testing.T) {
	data, err := Marshal(singleFile())
	require.NoError(t, err)
	assert.Equal(t, singleFileBytes, data)
}

func TestRoundTrip(t *testing.T) {
	multi := testutil.SampleGraph()
	multi.Roots = append(multi.Roots, "/c", "/")
	multi.Records["/c"] = &domain.PathRecord{
		Kind:     domain.KindDirectory,
		Name:     "c",
		Children: []string{"/c/locked", "/c/link", "/c/gone"},
	}
	multi.Records["/c/locked"] = domain.NewUnreadableRecord("/c", "locked", domain.KindUnreadableDirectory)
	multi.Records["/c/gone"] = domain.NewUnreadableRecord("/c", "gone", domain.KindUnreadableFile)
	multi.Records["/c/link"] = &domain.PathRecord{
		ParentPath:       "/c",
		Kind:             domain.KindSymlink,
		Name:             "link",
		ModifiedAtMillis: -5,
	}
	multi.Records["/"] = &domain.PathRecord{Kind: domain.KindDirectory, Name: "/"}
	require.NoError(t, multi.Validate())

	tests := []struct {
		name  string
		graph *domain.PathGraph
	}{
		{"empty", domain.NewPathGraph()},
		{"single file", singleFile()},
		{"sample", testutil.SampleGraph()},
		{"multiple roots", multi},
		{"unicode", func() *domain.PathGraph {
			g := domain.NewPathGraph()
			g.Roots = []string{"/données"}
			g.Records["/données"] = &domain.PathRecord{Kind: domain.KindFile, Name: "données", SizeBytes: 3}
			return g
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.graph)
			require.NoError(t, err)

			decoded, err := Unmarshal(data)
			require.NoError(t, err)
			assert.True(t, tt.graph.Equal(decoded), "decoded graph differs")
		})
	}
}

func TestRoundTrip_PreservesChildrenOrder(t *testing.T) {
	g := testutil.SampleGraph()
	g.Records["/a"].Children = []string{"/a/x", "/a/b"}

	data, err := Marshal(g)
	require.NoError(t, err)
	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"/a/x", "/a/b"}, decoded.Records["/a"].Children)
	assert.Equal(t, "/a", decoded.Records["/a/b"].ParentPath)
	assert.False(t, decoded.Records["/a"].HasParent())
}

func TestDecode_Truncated(t *testing.T) {
	data, err := Marshal(testutil.SampleGraph())
	require.NoError(t, err)

	for n := 0; n < len(data); n++ {
		_, err := Unmarshal(data[:n])
		require.ErrorIs(t, err, domain.ErrCacheCorrupt, "prefix of %d bytes", n)
	}
}

func TestDecode_Corrupt(t *testing.T) {
	mutate := func(f func([]byte) []byte) []byte {
		data := append([]byte(nil), singleFileBytes...)
		return f(data)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"trailing byte", mutate(func(b []byte) []byte { return append(b, 0) })},
		{"unknown kind", mutate(func(b []byte) []byte { b[13] = 'Q'; return b })},
		{"negative root count", mutate(func(b []byte) []byte { copy(b, []byte{0xff, 0xff, 0xff, 0xff}); return b })},
		{"negative child count", mutate(func(b []byte) []byte { b[len(b)-4] = 0x80; return b })},
		{"duplicate path", mutate(func(b []byte) []byte {
			b[3] = 2
			return append(b, singleFileBytes[4:]...)
		})},
		{"file with children", mutate(func(b []byte) []byte {
			b[len(b)-1] = 1
			child := []byte{
				0, 4, '/', 'r', '/', 'c',
				0, 1, 'c',
				0, 1, 'F',
				0, 0, 0, 0, 0, 0, 0, 0,
				0, 0, 0, 0, 0, 0, 0, 0,
				0, 0, 0, 0,
			}
			return append(b, child...)
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			assert.ErrorIs(t, err, domain.ErrCacheCorrupt)
		})
	}
}

func TestEncode_Errors(t *testing.T) {
	t.Run("missing child", func(t *testing.T) {
		g := testutil.SampleGraph()
		delete(g.Records, "/a/b/y")
		_, err := Marshal(g)
		assert.ErrorIs(t, err, domain.ErrInvalidGraph)
	})

	t.Run("string too long", func(t *testing.T) {
		g := singleFile()
		g.Records["/r"].Name = strings.Repeat("n", 70000)
		_, err := Marshal(g)
		assert.ErrorIs(t, err, ErrStringTooLong)
	})

	t.Run("unknown kind", func(t *testing.T) {
		g := singleFile()
		g.Records["/r"].Kind = domain.PathKind(42)
		_, err := Marshal(g)
		assert.ErrorIs(t, err, domain.ErrUnknownKind)
	})

	t.Run("nil graph", func(t *testing.T) {
		err := Encode(&bytes.Buffer{}, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidGraph)
	})
}
