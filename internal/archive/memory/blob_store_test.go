package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObject(t *testing.T) {
	t.Parallel()

	s := New()
	uri, err := s.PutObject(context.Background(), "runs/r1/page.html", "text/html", []byte("<html/>"))
	require.NoError(t, err)
	require.Equal(t, "mem://runs/r1/page.html", uri)

	data, ok := s.Get("runs/r1/page.html")
	require.True(t, ok)
	require.Equal(t, []byte("<html/>"), data)
	require.Equal(t, 1, s.Len())
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.PutObject(context.Background(), "  ", "text/html", nil)
	require.Error(t, err)
}
