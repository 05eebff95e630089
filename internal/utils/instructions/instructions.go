package instructions

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
)

type Kind string

const (
	Return503After          Kind = "return-503-after"
	Return308WithoutRange   Kind = "return-308-without-range"
	ReturnBrokenStreamAfter Kind = "return-broken-stream-after"
)

type Instruction struct {
	Kind  Kind
	Bytes int64
}

func (i Instruction) String() string {
	if i.Kind == Return308WithoutRange {
		return string(i.Kind)
	}

	return fmt.Sprintf("%s-%d", i.Kind, i.Bytes)
}

// Parse reads comma separated instructions. Byte counts take the binary
// suffixes K and M as in return-503-after-256K.
func Parse(values ...string) ([]Instruction, error) {
	var result []Instruction

	for _, value := range values {
		for _, raw := range strings.Split(value, ",") {
			raw = strings.TrimSpace(strings.ToLower(raw))
			if raw == "" {
				continue
			}

			instruction, err := parseOne(raw)
			if err != nil {
				return nil, err
			}

			result = append(result, instruction)
		}
	}

	return result, nil
}

func parseOne(raw string) (Instruction, error) {
	if raw == string(Return308WithoutRange) {
		return Instruction{Kind: Return308WithoutRange}, nil
	}

	for _, kind := range []Kind{Return503After, ReturnBrokenStreamAfter} {
		prefix := string(kind) + "-"
		if !strings.HasPrefix(raw, prefix) {
			continue
		}

		bytes, err := parseBytes(strings.TrimPrefix(raw, prefix))
		if err != nil {
			return Instruction{}, storageError.NewStorageError(codes.InvalidArgument).
				WithMessagef("invalid instruction %q: %v", raw, err)
		}

		return Instruction{Kind: kind, Bytes: bytes}, nil
	}

	return Instruction{}, storageError.NewStorageError(codes.InvalidArgument).
		WithMessagef("unknown instruction %q", raw)
}

func parseBytes(s string) (int64, error) {
	switch {
	case strings.HasSuffix(s, "k"):
		s = strings.TrimSuffix(s, "k") + "kib"
	case strings.HasSuffix(s, "m"):
		s = strings.TrimSuffix(s, "m") + "mib"
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}

	return int64(n), nil
}

// Find returns the first instruction of the given kind.
func Find(list []Instruction, kind Kind) (Instruction, bool) {
	for _, instruction := range list {
		if instruction.Kind == kind {
			return instruction, true
		}
	}

	return Instruction{}, false
}
