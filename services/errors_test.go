package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/camden-git/civicregistry/repository"
)

func TestTranslate(t *testing.T) {
	assert.Nil(t, translate(nil, "household"))

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", gorm.ErrRecordNotFound, KindNotFound},
		{"wrapped duplicate", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), KindConflict},
		{"stale", fmt.Errorf("update: %w", repository.ErrStaleVersion), KindStale},
		{"foreign", errors.New("disk full"), KindInternal},
		{"service error passes through", validationf("ward is required"), KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := translate(tc.err, "household")
			assert.Equal(t, tc.want, KindOf(err))
			assert.True(t, IsKind(err, tc.want))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	err := translate(gorm.ErrRecordNotFound, "person")
	var se *Error
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "person not found", se.Message)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.Equal(t, "validation: ward is required", validationf("ward is required").Error())
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.False(t, IsKind(nil, KindInternal))
}
