package session

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// csrfFieldNames are the hidden input names that carry an anti-forgery token.
var csrfFieldNames = []string{"sakai_csrf_token", "_csrf", "csrf_token"}

// loginForm is what the login page tells us about how to submit credentials.
type loginForm struct {
	action     string
	token      string
	tokenField string
}

// parseLoginForm extracts the first form's action and any anti-forgery
// token from a login page.
func parseLoginForm(body []byte) (loginForm, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return loginForm{}, fmt.Errorf("parsing login page: %w", err)
	}

	var form loginForm
	formSeen := false
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "form":
			if !formSeen {
				formSeen = true
				form.action = attr(n, "action")
			}
		case "input":
			if form.token != "" {
				return
			}
			name := attr(n, "name")
			for _, field := range csrfFieldNames {
				if name == field {
					form.token, form.tokenField = attr(n, "value"), name
					return
				}
			}
			if attr(n, "id") == "sakai_csrf_token" {
				form.token, form.tokenField = attr(n, "value"), name
			}
		case "meta":
			if form.token == "" && attr(n, "name") == "csrf-token" {
				form.token = attr(n, "content")
			}
		}
	})

	return form, nil
}

// findCurrentUser returns the text of the element that shows the signed-in
// user, or "".
func findCurrentUser(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var user string
	walk(doc, func(n *html.Node) {
		if user != "" || n.Type != html.ElementNode {
			return
		}
		if attr(n, "id") == "loginUser" || hasClass(n, "currentUser") {
			user = strings.TrimSpace(textContent(n))
		}
	})
	return user
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}
