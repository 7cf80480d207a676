package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLoginForm(t *testing.T) {
	tests := []struct {
		name       string
		html       string
		action     string
		token      string
		tokenField string
	}{
		{
			name:       "sakai hidden field",
			html:       loginPageHTML,
			action:     "/portal/xlogin",
			token:      "tok123",
			tokenField: "sakai_csrf_token",
		},
		{
			name:       "generic csrf field",
			html:       `<form action="https://sso.example.edu/login"><input name="_csrf" value="abc"></form>`,
			action:     "https://sso.example.edu/login",
			token:      "abc",
			tokenField: "_csrf",
		},
		{
			name:       "field found by id",
			html:       `<form action="/x"><input id="sakai_csrf_token" name="tok" value="by-id"></form>`,
			action:     "/x",
			token:      "by-id",
			tokenField: "tok",
		},
		{
			name:  "meta tag",
			html:  `<html><head><meta name="csrf-token" content="meta-tok"></head><body><form></form></body></html>`,
			token: "meta-tok",
		},
		{
			name:   "no token",
			html:   `<form action="/login"><input name="eid"></form><form action="/other"></form>`,
			action: "/login",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form, err := parseLoginForm([]byte(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.action, form.action)
			assert.Equal(t, tt.token, form.token)
			assert.Equal(t, tt.tokenField, form.tokenField)
		})
	}
}

func TestFindCurrentUser(t *testing.T) {
	assert.Equal(t, "Ama Mensah", findCurrentUser([]byte(workspaceHTML)))
	assert.Equal(t, "Kofi", findCurrentUser([]byte(`<div id="loginUser"> <b>Kofi</b> </div>`)))
	assert.Equal(t, "", findCurrentUser([]byte(`<p>nobody</p>`)))
}
