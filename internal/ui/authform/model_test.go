package authform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, validateEmail("a@x.com"))
	assert.NoError(t, validateEmail("  a@x.com "))
	assert.Error(t, validateEmail(""))
	assert.Error(t, validateEmail("not-an-email"))
}

func TestValidatePassword(t *testing.T) {
	m := New(80, 24)

	m.Start(ModeLogin, "")
	assert.NoError(t, m.validatePassword("short"))
	assert.Error(t, m.validatePassword(""))

	m.Start(ModeRegister, "")
	assert.Error(t, m.validatePassword("short"))
	assert.NoError(t, m.validatePassword("longenough"))
}

func TestValidateConfirm(t *testing.T) {
	m := New(80, 24)
	m.Start(ModeRegister, "")
	m.fb.password = "longenough"

	assert.NoError(t, m.validateConfirm("longenough"))
	assert.Error(t, m.validateConfirm("different"))
}

func TestSetErrorKeepsEmail(t *testing.T) {
	m := New(80, 24)
	m.Start(ModeLogin, "a@x.com")
	m.fb.password = "secret"

	m.SetError(errors.New("Incorrect email or password"))

	assert.Equal(t, "a@x.com", m.fb.email)
	assert.Empty(t, m.fb.password)
	assert.Equal(t, ModeLogin, m.Mode())
	assert.Contains(t, m.View(), "Incorrect email or password")
}
