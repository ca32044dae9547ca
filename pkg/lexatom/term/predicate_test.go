package term

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	assert.Equal(t, "processes", Name("processes(C, D)"))
	assert.Equal(t, "consent", Name(" consent "))
}

func TestHead(t *testing.T) {
	assert.Equal(t, "violation(C)", Head("violation(C) :- controller(C), \\+ notified(C)."))
	assert.Equal(t, "fact(a)", Head("fact(a)."))
}

func TestMaskFacts(t *testing.T) {
	got, err := MaskFacts([]string{"controller(C)", "data_subject(S)", "breach"}, NewCounter(1, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"controller(_X1).", "data_subject(_X2).", "_X3."}, got)
}

func TestMaskFactsMalformed(t *testing.T) {
	_, err := MaskFacts([]string{"ok(A)", "broken(A"}, NewCounter(1, nil))
	assert.Error(t, err)
}

func TestDynamicDeclaration(t *testing.T) {
	fact, err := DynamicDeclaration("controller(C)", true)
	require.NoError(t, err)
	assert.Equal(t, ":- dynamic controller/1. % controller(C)", fact)

	derived, err := DynamicDeclaration("violation(C, D)", false)
	require.NoError(t, err)
	assert.Equal(t, "%:- dynamic violation/2. % violation(C, D); This is a derived predicate, not a fact.", derived)
}
