package deltacodec

import "bytes"

// OperationKind tags whether an Operation references a block from the base
// content or carries literal bytes that weren't found in the base.
type OperationKind uint8

const (
	// OpBlock references the base block at Index verbatim.
	OpBlock OperationKind = iota
	// OpData carries literal bytes absent from the base.
	OpData
)

// Operation is one step of a delta: either "copy base block Index" or "write
// these literal Data bytes", applied in sequence by Patch.
type Operation struct {
	Kind  OperationKind `json:"kind"`
	Index uint64        `json:"index,omitempty"`
	Data  []byte        `json:"data,omitempty"`
}

// Delta is the ordered list of operations that reconstructs target from
// base plus a Signature of base.
type Delta []Operation

const maxDataRunLength = 1 << 14

// Deltafy computes a Delta that reconstructs target given a peer that holds
// base content matching sig (spec.md §4.5, step 2-3: the sender computes a
// delta against the caller's signature). It scans target with a rolling
// window matching sig.BlockSize, emitting OpBlock operations on weak+strong
// hash matches and coalescing everything else into OpData runs.
func Deltafy(target []byte, sig Signature) Delta {
	if sig.BlockSize == 0 || len(sig.Hashes) == 0 {
		if len(target) == 0 {
			return nil
		}
		return chunk(target)
	}

	index := make(map[uint32][]int)
	for i, h := range sig.Hashes {
		index[h.Weak] = append(index[h.Weak], i)
	}

	blockSize := sig.BlockSize
	var delta Delta
	var literal []byte

	flushLiteral := func() {
		for len(literal) > 0 {
			n := len(literal)
			if n > maxDataRunLength {
				n = maxDataRunLength
			}
			delta = append(delta, Operation{Kind: OpData, Data: append([]byte(nil), literal[:n]...)})
			literal = literal[n:]
		}
	}

	pos := 0
	for pos < len(target) {
		end := pos + int(blockSize)
		if end > len(target) {
			end = len(target)
		}
		window := target[pos:end]
		weak, _, _ := weakHash(window, blockSize)

		matched := -1
		if candidates, ok := index[weak]; ok {
			strong := strongHash(window)
			for _, candidateIndex := range candidates {
				if bytes.Equal(strong, sig.Hashes[candidateIndex].Strong) {
					matched = candidateIndex
					break
				}
			}
		}

		if matched >= 0 {
			flushLiteral()
			delta = append(delta, Operation{Kind: OpBlock, Index: uint64(matched)})
			pos = end
			continue
		}

		literal = append(literal, target[pos])
		pos++
	}
	flushLiteral()

	return delta
}

// chunk splits data into literal OpData operations, used when the base is
// empty (or has no signature), i.e. every byte of target is new.
func chunk(data []byte) Delta {
	var delta Delta
	for offset := 0; offset < len(data); offset += maxDataRunLength {
		end := offset + maxDataRunLength
		if end > len(data) {
			end = len(data)
		}
		delta = append(delta, Operation{Kind: OpData, Data: append([]byte(nil), data[offset:end]...)})
	}
	return delta
}
