package domain

// Tipos de evento que se enrutan al handler de órdenes.
const (
	OrderEvent              = "order"
	ConsolidatedBlocksReady = "consolidated.blocks.ready.distribution"
)

// EventTypes devuelve los tipos que aplica el servicio de órdenes.
func EventTypes() []string {
	return []string{OrderEvent, ConsolidatedBlocksReady}
}
