package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coletorapp/conferencia-movel/internal/domain"
	"github.com/coletorapp/conferencia-movel/internal/infrastructure/remote"
)

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *remote.Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, remote.NewClient(srv.URL, "tok-123", 5*time.Second)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}

// Os códigos do backend são traduzidos para a taxonomia de domínio uma única
// vez, na borda; os chamadores usam errors.Is.
func TestOpenByReference_MapeamentoDeErros(t *testing.T) {
	cases := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{"sessão em uso", http.StatusConflict, "SESSION_IN_USE", domain.ErrConflict},
		{"sessão não existe", http.StatusNotFound, "SESSION_NOT_FOUND", domain.ErrTerminalNotFound},
		{"já finalizada", http.StatusConflict, "ALREADY_FINALIZED", domain.ErrTerminalNotFound},
		{"item travado", http.StatusConflict, "ITEM_LOCKED", domain.ErrLockConflict},
		{"referência inválida", http.StatusBadRequest, "INVALID_REFERENCE", domain.ErrValidation},
		{"credencial expirada", http.StatusUnauthorized, "TOKEN_EXPIRED", domain.ErrUnauthorized},
		{"acesso negado", http.StatusForbidden, "", domain.ErrUnauthorized},
		{"400 sem código", http.StatusBadRequest, "", domain.ErrValidation},
		{"409 sem código", http.StatusConflict, "", domain.ErrConflict},
		{"erro interno", http.StatusInternalServerError, "", domain.ErrTransient},
		{"indisponível", http.StatusServiceUnavailable, "", domain.ErrTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeError(w, tc.status, tc.code, "detalhe")
			})
			_, err := client.OpenByReference(context.Background(), "10/20", "f01")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestOpenByReference_Sucesso(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/conferences/open", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "10/20", body["reference"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "s-1",
			"status": "em_conferencia",
			"owner":  "ana",
			"items": []map[string]any{
				{"product_id": "SKU100", "expected": 3, "counted": 0},
			},
		})
	})

	sess, err := client.OpenByReference(context.Background(), "10/20", "f01")
	require.NoError(t, err)
	assert.Equal(t, "s-1", sess.ID)
	require.Len(t, sess.Items, 1)
	assert.Equal(t, int64(3), sess.Items[0].Expected)
}

func TestCancel_ToleraSessaoJaInexistente(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "sessão não existe")
	})
	assert.NoError(t, client.Cancel(context.Background(), "s-1"))
}

func TestActiveSession_SemSessaoDevolveNil(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "nenhuma sessão aberta")
	})
	sess, err := client.ActiveSession(context.Background(), "ana")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestBatchOpen_ResultadosParciais(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"reference": "r1", "session": map[string]any{"id": "s-r1", "status": "em_conferencia", "owner": "ana"}},
				{"reference": "r2", "error": map[string]string{"code": "SESSION_IN_USE", "message": "em uso"}},
			},
		})
	})

	results, err := client.BatchOpen(context.Background(), []string{"r1", "r2"}, "f01")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "s-r1", results[0].Session.ID)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, domain.ErrConflict)
}

func TestDoJSON_FalhaDeRedeEhTransitoria(t *testing.T) {
	srv, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := client.OpenByReference(context.Background(), "10/20", "f01")
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestPointLookup_MissDevolveNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "", "código não existe")
	}))
	defer srv.Close()

	bc := remote.NewBarcodeClient(remote.NewClient(srv.URL, "", 5*time.Second))
	entry, err := bc.PointLookup(context.Background(), "000000")
	require.NoError(t, err)
	assert.Nil(t, entry)
}
