package admission_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/relay/internal/admission"
)

func TestPolicy_Allowed(t *testing.T) {
	p, err := admission.NewPolicy(
		[]string{"https://server-hub-optimised-ten.vercel.app"},
		[]string{"https://*.example.com", "http://localhost:*"},
		false,
	)
	require.NoError(t, err)

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://server-hub-optimised-ten.vercel.app", true},
		{"https://server-hub-optimised-ten.vercel.app/", true},
		{"HTTPS://Server-Hub-Optimised-Ten.vercel.app", true},
		{"https://preview.example.com", true},
		{"http://localhost:3000", true},
		{"https://example.com", false},
		{"https://evil.com", false},
		{"https://a.b.example.com.evil.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Allowed(tt.origin))
		})
	}
}

func TestPolicy_AllowEmpty(t *testing.T) {
	p, err := admission.NewPolicy(nil, nil, true)
	require.NoError(t, err)

	assert.True(t, p.Allowed(""))
	assert.False(t, p.Allowed("https://anything.test"))
}

func TestPolicy_InvalidPattern(t *testing.T) {
	_, err := admission.NewPolicy(nil, []string{"https://[broken"}, false)
	assert.ErrorIs(t, err, admission.ErrInvalidPattern)
}

func TestPolicy_ReplaceKeepsOldRulesOnError(t *testing.T) {
	p, err := admission.NewPolicy([]string{"https://a.test"}, nil, false)
	require.NoError(t, err)

	err = p.Replace([]string{"https://b.test"}, []string{"https://[broken"})
	require.ErrorIs(t, err, admission.ErrInvalidPattern)

	assert.True(t, p.Allowed("https://a.test"))
	assert.False(t, p.Allowed("https://b.test"))
}

func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/relay/origins", []byte(`
# production
https://app.test

https://*.preview.test
`), 0o644))

	origins, patterns, err := admission.LoadFile(fs, "/etc/relay/origins")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.test"}, origins)
	assert.Equal(t, []string{"https://*.preview.test"}, patterns)

	_, _, err = admission.LoadFile(fs, "/missing")
	assert.Error(t, err)
}

func TestFileSource_Reload(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/origins", []byte("https://file.test\n"), 0o644))

	p, err := admission.NewPolicy([]string{"https://static.test"}, nil, false)
	require.NoError(t, err)
	src := admission.NewFileSource(fs, "/origins", p, []string{"https://static.test"}, nil, nil)

	require.NoError(t, src.Reload())
	assert.True(t, p.Allowed("https://static.test"))
	assert.True(t, p.Allowed("https://file.test"))

	require.NoError(t, afero.WriteFile(fs, "/origins", []byte("https://other.test\n"), 0o644))
	require.NoError(t, src.Reload())
	assert.True(t, p.Allowed("https://static.test"))
	assert.False(t, p.Allowed("https://file.test"))
	assert.True(t, p.Allowed("https://other.test"))
}

func TestFileSource_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "origins")
	require.NoError(t, os.WriteFile(path, []byte("https://first.test\n"), 0o644))

	p, err := admission.NewPolicy(nil, nil, false)
	require.NoError(t, err)
	src := admission.NewFileSource(afero.NewOsFs(), path, p, nil, nil, nil)
	require.NoError(t, src.Reload())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte("https://second.test\n"), 0o644))

	assert.Eventually(t, func() bool {
		return p.Allowed("https://second.test") && !p.Allowed("https://first.test")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGate(t *testing.T) {
	p, err := admission.NewPolicy([]string{"https://ok.test"}, nil, false)
	require.NoError(t, err)

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, admission.Gate(p))

	allowed := httptest.NewRequest(http.MethodGet, "/ws", nil)
	allowed.Header.Set(echo.HeaderOrigin, "https://ok.test")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, allowed)
	assert.Equal(t, http.StatusOK, rec.Code)

	denied := httptest.NewRequest(http.MethodGet, "/ws", nil)
	denied.Header.Set(echo.HeaderOrigin, "https://nope.test")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, denied)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
