package models

import (
	"context"
	"fmt"
	"reflect"

	"gorm.io/gorm/schema"

	"microfin-go/utils"
)

func init() {
	schema.RegisterSerializer("sealed", SealedSerializer{})
}

// SealedSerializer encrypts string columns on write and decrypts them on read.
type SealedSerializer struct{}

func (SealedSerializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) error {
	var sealed string
	switch v := dbValue.(type) {
	case nil:
	case string:
		sealed = v
	case []byte:
		sealed = string(v)
	default:
		return fmt.Errorf("sealed: unsupported column value %T for %s", dbValue, field.Name)
	}

	plain, err := utils.DecryptSensitiveData(sealed)
	if err != nil {
		return fmt.Errorf("sealed: %s: %w", field.Name, err)
	}
	field.ReflectValueOf(ctx, dst).SetString(plain)
	return nil
}

func (SealedSerializer) Value(ctx context.Context, field *schema.Field, dst reflect.Value, fieldValue interface{}) (interface{}, error) {
	plain, ok := fieldValue.(string)
	if !ok {
		return nil, fmt.Errorf("sealed: %s must be a string, got %T", field.Name, fieldValue)
	}
	return utils.EncryptSensitiveData(plain)
}
