package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// minimalPDF builds a valid PDF with the given number of blank pages
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 100] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestPDFRenderer_RendersPages(t *testing.T) {
	path := writeFile(t, "doc.pdf", minimalPDF(3))
	r := NewPDFRenderer(72, 0, zap.NewNop())

	pages, err := r.Pages(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	for i, p := range pages {
		assert.Equal(t, i+1, p.Number)
		_, format, err := image.DecodeConfig(bytes.NewReader(p.Image))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
	}
}

func TestPDFRenderer_MaxPages(t *testing.T) {
	path := writeFile(t, "doc.pdf", minimalPDF(3))
	r := NewPDFRenderer(72, 2, zap.NewNop())

	pages, err := r.Pages(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestPDFRenderer_ImagePassThrough(t *testing.T) {
	data := testPNG(t, 8, 8)
	path := writeFile(t, "receipt.PNG", data)

	pages, err := NewPDFRenderer(0, 0, zap.NewNop()).Pages(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, data, pages[0].Image)
}

func TestPDFRenderer_Errors(t *testing.T) {
	r := NewPDFRenderer(0, 0, zap.NewNop())

	_, err := r.Pages(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)

	_, err = r.Pages(context.Background(), writeFile(t, "notes.txt", []byte("hello")))
	assert.Error(t, err)
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("a.pdf"))
	assert.True(t, IsSupported("a.JPG"))
	assert.False(t, IsSupported("a.docx"))
}
