package entity

import (
	"fmt"
	"strings"
)

// ItemKey chave opaca e estável de um item dentro de um volume.
// Atribuída uma única vez na criação do item e nunca recalculada, para evitar
// colisões entre os formatos usados pelos diferentes tipos de conferência.
type ItemKey string

// NewItemKey chave para conferência de documento único ou avulsa (produto puro).
func NewItemKey(productID string) ItemKey {
	return ItemKey(productID)
}

// NewBatchItemKey chave para conferência agrupada ("subref:produto").
func NewBatchItemKey(subRef, productID string) ItemKey {
	return ItemKey(fmt.Sprintf("%s:%s", subRef, productID))
}

// BatchParts separa a chave agrupada em sub-referência e produto.
// ok é falso para chaves de documento único ou avulsa.
func (k ItemKey) BatchParts() (subRef, productID string, ok bool) {
	s := string(k)
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// Item uma linha de conferência: esperado vs. contado de um produto.
type Item struct {
	Key         ItemKey
	ProductID   string
	Description string
	Barcode     string
	Expected    int64
	Counted     int64
	Locked      bool
	LockedBy    string
}

// Pending quantidade ainda não contada (nunca negativa).
func (i Item) Pending() int64 {
	if p := i.Expected - i.Counted; p > 0 {
		return p
	}
	return 0
}

// LockedByOther informa se o item está travado por um operador diferente.
func (i Item) LockedByOther(operator string) bool {
	return i.Locked && i.LockedBy != "" && i.LockedBy != operator
}

// Status de divergência de um item.
const (
	DivergenceFalta   = "falta"
	DivergenceSobra   = "sobra"
	DivergenceCorreto = "correto"
)

// Divergence resultado derivado de esperado vs. contado. Nunca é persistido:
// é recalculado na leitura para não virar uma segunda fonte de verdade.
type Divergence struct {
	Falta  int64
	Sobra  int64
	Status string
}

// Diverge classifica esperado vs. contado. Exatamente um status é verdadeiro
// e falta/sobra nunca são negativos.
func Diverge(expected, counted int64) Divergence {
	d := Divergence{}
	if expected > counted {
		d.Falta = expected - counted
	}
	if counted > expected {
		d.Sobra = counted - expected
	}
	switch {
	case d.Falta > 0:
		d.Status = DivergenceFalta
	case d.Sobra > 0:
		d.Status = DivergenceSobra
	default:
		d.Status = DivergenceCorreto
	}
	return d
}

// Divergence devolve a divergência derivada do item.
func (i Item) Divergence() Divergence {
	return Diverge(i.Expected, i.Counted)
}
