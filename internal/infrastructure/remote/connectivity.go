package remote

import (
	"net/http"
	"sync"
	"time"

	"github.com/coletorapp/conferencia-movel/internal/application/conference"
)

var _ conference.Connectivity = (*Monitor)(nil)

// Monitor sonda o endpoint de saúde do backend para decidir se o agente está
// online. O resultado fica em cache por um intervalo curto para não transformar
// cada escaneamento em uma requisição de rede.
type Monitor struct {
	url   string
	http  *http.Client
	cache time.Duration

	mu        sync.Mutex
	online    bool
	checkedAt time.Time
}

// NewMonitor constrói o monitor de conectividade.
func NewMonitor(baseURL string) *Monitor {
	return &Monitor{
		url:   baseURL + "/v1/health",
		http:  &http.Client{Timeout: 2 * time.Second},
		cache: 10 * time.Second,
	}
}

// Online devolve o estado de conectividade, sondando se o cache expirou.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.checkedAt) < m.cache {
		return m.online
	}
	m.online = m.probe()
	m.checkedAt = time.Now()
	return m.online
}

// Invalidate descarta o cache; a próxima consulta sonda de novo. Usado quando
// uma chamada de negócio acabou de falhar por rede.
func (m *Monitor) Invalidate() {
	m.mu.Lock()
	m.checkedAt = time.Time{}
	m.mu.Unlock()
}

func (m *Monitor) probe() bool {
	resp, err := m.http.Get(m.url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}
