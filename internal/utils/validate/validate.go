package validate

import (
	"github.com/go-playground/validator/v10"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
)

var validate = validator.New()

func Validate(s any) error {
	err := validate.Struct(s)
	if err != nil {
		return storageError.NewStorageError(codes.InvalidArgument).WithMessagef("invalid request: %s", err.Error())
	}

	return nil
}
