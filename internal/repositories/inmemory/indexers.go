package inmemory

import (
	"fmt"

	"github.com/google/uuid"
)

// UUIDValueIndexer indexes objects whose id is only reachable through a
// getter, since memdb field indexers cannot see unexported fields.
type UUIDValueIndexer struct {
	Getter func(obj interface{}) uuid.UUID
}

func (u *UUIDValueIndexer) FromObject(obj interface{}) (bool, []byte, error) {
	val := u.Getter(obj)
	if val == uuid.Nil {
		return false, nil, nil
	}

	buf, err := val.MarshalBinary()
	return true, buf, err
}

func (u *UUIDValueIndexer) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("UUIDValueIndexer takes exactly one argument")
	}

	id, ok := args[0].(uuid.UUID)
	if !ok {
		return nil, fmt.Errorf("argument is not uuid.UUID")
	}

	return id.MarshalBinary()
}

type StringValueIndexer struct {
	Getter func(obj interface{}) string
}

func (s *StringValueIndexer) FromObject(obj interface{}) (bool, []byte, error) {
	val := s.Getter(obj)
	if val == "" {
		return false, nil, nil
	}

	return true, []byte(val + "\x00"), nil
}

func (s *StringValueIndexer) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("StringValueIndexer takes exactly one argument")
	}

	val, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("argument is not a string")
	}

	return []byte(val + "\x00"), nil
}
