package dlc

import "errors"

var (
	// ErrMalformedCommitment cobre qualquer blob de anúncio ou atestação
	// truncado, com encoding errado ou fora do formato TLV esperado.
	ErrMalformedCommitment = errors.New("malformed oracle commitment")

	// ErrInvalidScalar aparece quando a componente s de uma assinatura de
	// atestação é zero ou estoura a ordem do grupo.
	ErrInvalidScalar = errors.New("invalid signing scalar")

	// ErrUnsupportedDescriptor marca eventos que não são de enumeração.
	ErrUnsupportedDescriptor = errors.New("only enum event descriptors are supported")
)
