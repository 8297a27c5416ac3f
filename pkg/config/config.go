package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa a configuração do agente (leitura via Viper de env e opcionalmente arquivo).
type Config struct {
	App    AppConfig
	Store  StoreConfig
	Remote RemoteConfig
	Sync   SyncConfig
	HTTP   HTTPConfig
	JWT    JWTConfig
}

// AppConfig configuração geral.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// StoreConfig configuração da réplica local (SQLite embarcado no coletor).
type StoreConfig struct {
	Path          string // caminho do arquivo .db; ":memory:" em testes
	RetentionDays int    // volumes mais antigos que isso são removidos ao carregar
}

// RemoteConfig configuração do serviço remoto de conferência.
type RemoteConfig struct {
	BaseURL        string
	Token          string // token do dispositivo junto ao backend
	TimeoutSeconds int    // timeout por chamada RPC
}

// Timeout devolve o timeout por chamada como time.Duration.
func (c RemoteConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SyncConfig configuração do reconciliador em segundo plano.
type SyncConfig struct {
	DebounceSeconds int // espera após a última mutação antes de sincronizar
	PageSize        int // tamanho de página da sincronização da tabela de barras
	ManifestMaxDays int // idade máxima do manifesto aceito para abertura offline
}

// Debounce devolve o debounce como time.Duration.
func (c SyncConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceSeconds) * time.Second
}

// HTTPConfig configuração da API local do dispositivo.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devolve o endereço de escuta (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig configuração do token de operador emitido pelo backend.
type JWTConfig struct {
	Secret string
	Issuer string
}

// Load lê a configuração de variáveis de ambiente (e opcionalmente de arquivo).
// As env vars têm prioridade. Nomes esperados: APP_ENV, STORE_PATH, REMOTE_BASE_URL, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: arquivo de configuração (.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos erro se não existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "conferencia-movel"),
		},
		Store: StoreConfig{
			Path:          getString(v, "STORE_PATH", "conferencia.db"),
			RetentionDays: getInt(v, "STORE_RETENTION_DAYS", 30),
		},
		Remote: RemoteConfig{
			BaseURL:        getString(v, "REMOTE_BASE_URL", "http://localhost:8081"),
			Token:          getString(v, "REMOTE_TOKEN", ""),
			TimeoutSeconds: getInt(v, "REMOTE_TIMEOUT_SECONDS", 30),
		},
		Sync: SyncConfig{
			DebounceSeconds: getInt(v, "SYNC_DEBOUNCE_SECONDS", 15),
			PageSize:        getInt(v, "SYNC_PAGE_SIZE", 500),
			ManifestMaxDays: getInt(v, "SYNC_MANIFEST_MAX_DAYS", 7),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "127.0.0.1"),
			Port: getInt(v, "HTTP_PORT", 8090),
		},
		JWT: JWTConfig{
			Secret: getString(v, "JWT_SECRET", ""),
			Issuer: getString(v, "JWT_ISSUER", "conferencia-backend"),
		},
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}
