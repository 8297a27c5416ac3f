package domain

import "errors"

// Taxonomia de erros do motor de conferência (sem dependências externas).
// O adaptador remoto mapeia códigos de erro do backend para estes sentinelas
// uma única vez, na borda; o resto do código usa errors.Is.
var (
	// ErrValidation entrada malformada (referência, barras, quantidade); nunca é retentado.
	ErrValidation = errors.New("entrada inválida")
	// ErrConflict sessão em uso por outro operador ou já finalizada por outro; tem caminho de recuperação.
	ErrConflict = errors.New("conflito com sessão remota")
	// ErrTerminalNotFound sessão não existe mais ou já foi finalizada; o registro local é descartado.
	ErrTerminalNotFound = errors.New("sessão remota não existe mais")
	// ErrTransient falha de rede ou do serviço remoto; registrado no volume e retentado depois.
	ErrTransient = errors.New("falha transitória de sincronização")
	// ErrLockConflict item travado por outro operador; rejeitado antes de qualquer chamada remota.
	ErrLockConflict = errors.New("item travado por outro operador")
	// ErrUnauthorized credencial do dispositivo ou do operador rejeitada pelo
	// backend; não é retentada, fica registrada no volume até um novo login.
	ErrUnauthorized = errors.New("credencial rejeitada pelo backend")
	// ErrOffline operação exige conectividade e o dispositivo está offline.
	ErrOffline = errors.New("dispositivo offline")
	// ErrNotFound recurso local não encontrado.
	ErrNotFound = errors.New("recurso não encontrado")
)
