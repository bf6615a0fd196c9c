package app

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationError(t *testing.T) {
	err := NewOperationError("watch", "/tmp/a.txt", fs.ErrNotExist)
	assert.Equal(t, "watch /tmp/a.txt: file does not exist", err.Error())
	assert.ErrorIs(t, err, fs.ErrNotExist)

	err = err.WithContext("live reload")
	assert.Equal(t, "watch /tmp/a.txt (live reload): file does not exist", err.Error())

	var nilErr *OperationError
	assert.Nil(t, nilErr.WithContext("x"))
	assert.Equal(t, "", nilErr.Error())
	assert.NoError(t, nilErr.Unwrap())

	assert.Equal(t, "serve", (&OperationError{Op: "serve"}).Error())
}

func TestComponentError(t *testing.T) {
	cause := errors.New("bad level")
	err := NewComponentError("config", "validate", cause)
	assert.Equal(t, "config: validate: bad level", err.Error())
	assert.ErrorIs(t, err, cause)

	var ce *ComponentError
	wrapped := errors.Join(errors.New("other"), err)
	assert.ErrorAs(t, wrapped, &ce)
	assert.Equal(t, "config", ce.Component)

	assert.Equal(t, "screen", (&ComponentError{Component: "screen"}).Error())
}
