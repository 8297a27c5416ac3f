package entity

// Allocation rateio de um produto dentro de uma conferência agrupada: cada
// sub-referência mantém seu próprio par esperado/contado. O contado do item
// agregado é a soma dos rateios do produto; a sessão remota da sub-referência
// fica em SubSession.
type Allocation struct {
	SubRef    string
	ProductID string
	Expected  int64
	Counted   int64
}

// Pending quantidade ainda não contada nesta sub-referência (nunca negativa).
func (a Allocation) Pending() int64 {
	if p := a.Expected - a.Counted; p > 0 {
		return p
	}
	return 0
}

// SubSession sessão remota de uma sub-referência dentro da conferência
// agrupada. Finalized marca o progresso do fan-out de finalização, que não é
// atômico: uma reinvocação pula as sub-referências já encerradas.
type SubSession struct {
	SubRef    string
	SessionID string
	Finalized bool
}
