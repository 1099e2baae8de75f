package user

import (
	"bytes"
	"compress/gzip"
	"testing"
	"testing/fstest"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/wellbeing/core"
)

func gzipped(t *testing.T, content string) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestCheckPassword(t *testing.T) {
	fsys := fstest.MapFS{"pwds.txt.gz": {Data: gzipped(t, "Password1!\nletmein\nQwerty123!\n")}}
	require.NoError(t, LoadCommonPasswords(fsys, "pwds.txt.gz"))

	tests := []struct {
		name  string
		pwd   string
		attrs []string
		want  string
	}{
		{name: "too short", pwd: "Ab1!", want: pwdMinLenTag},
		{name: "whitespace", pwd: "Abcd 1234!", want: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", want: pwdNotAllNumTag},
		{name: "no special", pwd: "Abcdefg123", want: pwdComplexityTag},
		{name: "no upper", pwd: "abcdefg12!", want: pwdComplexityTag},
		{name: "similar to email", pwd: "Johnsmith1!", attrs: []string{"John", "johnsmith1@test.cd"}, want: pwdAttrSimTag},
		{name: "common", pwd: "Qwerty123!", want: pwdNoCommonTag},
		{name: "valid", pwd: "Wq3#mZ8!tLp", attrs: []string{"John", "john@test.cd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkPassword(tt.pwd, tt.attrs...))
		})
	}
}

func TestNewUserValidation(t *testing.T) {
	validate, translator := core.NewValidator()
	InitValidators(validate, translator)

	nu := NewUser{
		Name:            "Jane",
		Email:           "jane@test.cd",
		Password:        "Wq3#mZ8!tLp",
		PasswordConfirm: "nope",
		Roles:           []string{"lol"},
	}
	err := validate.Struct(nu)
	require.Error(t, err)

	fields := make(map[string]string)
	for _, fe := range err.(validator.ValidationErrors) {
		fields[fe.Field()] = fe.Translate(translator)
	}
	assert.Contains(t, fields, "password_confirm")
	assert.Equal(t, allRolesText, fields["roles"])

	nu.PasswordConfirm = nu.Password
	nu.Roles = []string{RolePlatformSupport}
	assert.NoError(t, validate.Struct(nu))
}

func TestMaxRolePriority(t *testing.T) {
	assert.Equal(t, 0, MaxRolePriority(nil))
	assert.Equal(t, 20, MaxRolePriority([]string{RolePlatformSupport}))
	assert.Equal(t, 30, MaxRolePriority([]string{RolePlatformSupport, RolePlatformAdmin}))
}
