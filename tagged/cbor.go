package tagged

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/gwos/unit/duration"
)

// DurationCBORTag is the private CBOR tag number wrapping the canonical duration string
const DurationCBORTag uint64 = 60606

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}
	if encMode, err = encOpts.EncMode(); err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}
	decOpts := cbor.DecOptions{
		IndefLength: cbor.IndefLengthForbidden,
	}
	if decMode, err = decOpts.DecMode(); err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// EncodeCBOR encodes duration as tagged CBOR text string
func EncodeCBOR(d duration.Duration) ([]byte, error) {
	return encMode.Marshal(cbor.Tag{Number: DurationCBORTag, Content: d.String()})
}

// DecodeCBOR decodes duration from tagged CBOR text string
func DecodeCBOR(data []byte) (duration.Duration, error) {
	var tag cbor.Tag
	if err := decMode.Unmarshal(data, &tag); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLiteral, err)
	}
	if tag.Number != DurationCBORTag {
		return 0, fmt.Errorf("%w: cbor tag %d", ErrTagUnknown, tag.Number)
	}
	payload, ok := tag.Content.(string)
	if !ok {
		return 0, fmt.Errorf("%w: cbor content %T", ErrLiteral, tag.Content)
	}
	return duration.Parse(payload)
}
