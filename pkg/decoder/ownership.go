package decoder

type Ownership int

const (
	// DecoderOwns means the decoder holds the only references to its composition.
	DecoderOwns Ownership = iota
	ExternallyShared
	// Detached means the decoder no longer references any composition.
	Detached
)

func (o Ownership) String() string {
	switch o {
	case DecoderOwns:
		return "decoder-owns"
	case ExternallyShared:
		return "externally-shared"
	default:
		return "detached"
	}
}
