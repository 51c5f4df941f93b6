package deltacodec

import (
	"bytes"

	"github.com/pkg/errors"
)

// ApplyPatch reconstructs the target bytes from base and a Delta previously
// computed against a Signature of base (spec.md §4.5, step 3: the receiver
// applies the delta it gets back from FetchPatch).
func ApplyPatch(base []byte, blockSize uint64, delta Delta) ([]byte, error) {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}

	var out bytes.Buffer
	for _, op := range delta {
		switch op.Kind {
		case OpBlock:
			start := int(op.Index * blockSize)
			if start >= len(base) {
				return nil, errors.Errorf("deltacodec: block index %d out of range for base of length %d", op.Index, len(base))
			}
			end := start + int(blockSize)
			if end > len(base) {
				end = len(base)
			}
			out.Write(base[start:end])
		case OpData:
			out.Write(op.Data)
		default:
			return nil, errors.Errorf("deltacodec: unknown operation kind %d", op.Kind)
		}
	}
	return out.Bytes(), nil
}
