package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBotforgeErrorFormatting(t *testing.T) {
	err := NewError(ErrCodeValidation, "something broke")
	assert.Equal(t, "[VALIDATION_ERROR] something broke", err.Error())

	err = NewErrorf(ErrCodeExecution, "hop limit %d exceeded", 10).WithNode("n1")
	assert.Equal(t, "[EXECUTION_ERROR] node n1: hop limit 10 exceeded", err.Error())
}

func TestBotforgeErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewError(ErrCodeStore, "write failed").WithCause(cause)

	assert.True(t, errors.Is(err, cause))
}

func TestIsCode(t *testing.T) {
	err := NewError(ErrCodeUnknownOption, "nope")

	assert.True(t, IsCode(err, ErrCodeUnknownOption))
	assert.False(t, IsCode(err, ErrCodeValidation))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeValidation))
	assert.False(t, IsCode(nil, ErrCodeValidation))
}

func TestValidationResultAggregation(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
	assert.NoError(t, r.ToError())

	r.AddWarning("n1", ErrCodeValidation, "node is unreachable from start")
	assert.True(t, r.Valid(), "warnings alone keep the result valid")

	r.AddErrorf("n2", ErrCodeValidation, "missing its %q branch", "true")

	other := &ValidationResult{}
	other.AddError("", ErrCodeValidation, "missing start node")
	r.Merge(other)

	assert.False(t, r.Valid())
	require.Len(t, r.Errors, 2)
	require.Len(t, r.Warnings, 1)

	findings := r.Findings()
	require.Len(t, findings, 3)
	assert.Equal(t, `error: node n2: missing its "true" branch`, findings[0])
	assert.Equal(t, "error: missing start node", findings[1])
	assert.Equal(t, "warning: node n1: node is unreachable from start", findings[2])
}

func TestValidationResultToError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("n1", ErrCodeValidation, "first problem")

	err := r.ToError()
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeValidation))

	r.AddError("n2", ErrCodeValidation, "second problem")
	err = r.ToError()
	be := err.(*BotforgeError)
	assert.Equal(t, "validation failed with 2 errors", be.Message)
	assert.Equal(t, 2, be.Details["error_count"])
}

func TestKnownKind(t *testing.T) {
	for _, k := range []NodeKind{KindStart, KindFinal, KindMessage, KindInput, KindCondition, KindChoice, KindAPI} {
		assert.True(t, KnownKind(k))
	}
	assert.False(t, KnownKind("teleport"))
}

func TestAllowedMethod(t *testing.T) {
	for _, m := range AllowedMethods {
		assert.True(t, AllowedMethod(m))
	}
	assert.False(t, AllowedMethod("PATCH"))
	assert.False(t, AllowedMethod("get"))
}
