package caroundtripper_test

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/comprobantes-backend/pkg/caroundtripper"
)

func writeFile(t *testing.T, content []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(p, content, 0600))
	return p
}

func TestClient_TrustsCA(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	caPem := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	c, err := caroundtripper.New(writeFile(t, caPem))
	require.NoError(t, err)

	res, err := (&http.Client{Transport: c}).Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestNew_InvalidFile(t *testing.T) {
	_, err := caroundtripper.New(filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)

	_, err = caroundtripper.New(writeFile(t, []byte("not a certificate")))
	assert.Error(t, err)

	key := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1, 2, 3}})
	_, err = caroundtripper.New(writeFile(t, key))
	assert.Error(t, err)
}
