package unifiedlogin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"

	"teclab/bitgate/pkg/backends"
)

// loginForm is the state scraped from the identity provider's login page.
type loginForm struct {
	action string
	fields url.Values
	salt   string
}

// casLogin drives the unified identity login form and returns the badge
// cookie issued to the backend origin.
type casLogin struct {
	backend     string
	loginURL    string
	baseURL     string
	badgeCookie string
	userAgent   string
	transport   http.RoundTripper
	logger      *slog.Logger
}

// login performs a full form login with a fresh cookie jar.
func (l *casLogin) login(ctx context.Context, creds backends.Credentials) (string, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return "", err
	}
	client := &http.Client{Jar: jar, Transport: l.transport}

	page, pageURL, err := l.get(ctx, client, l.loginURL)
	if err != nil {
		return "", l.authErr("failed to load login page", err)
	}

	form, err := parseLoginForm(page)
	if err != nil {
		return "", l.authErr("failed to parse login page", err)
	}

	password := creds.Password
	if form.salt != "" {
		password, err = encryptPassword(creds.Password, form.salt)
		if err != nil {
			return "", l.authErr("failed to encrypt password", err)
		}
	}

	values := form.fields
	values.Set("username", creds.Username)
	values.Set("password", password)
	setDefault(values, "_eventId", "submit")
	setDefault(values, "cllt", "userNameLogin")
	setDefault(values, "dllt", "generalLogin")
	setDefault(values, "rememberMe", "true")

	action := pageURL
	if form.action != "" {
		if ref, err := url.Parse(form.action); err == nil {
			action = pageURL.ResolveReference(ref)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.String(), strings.NewReader(values.Encode()))
	if err != nil {
		return "", l.authErr("failed to build login request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", l.authErr("login request failed", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()

	base, err := url.Parse(l.baseURL)
	if err != nil {
		return "", l.authErr("invalid base url", err)
	}
	for _, u := range []*url.URL{base, resp.Request.URL} {
		for _, c := range jar.Cookies(u) {
			if c.Name == l.badgeCookie && c.Value != "" {
				l.logger.Debug("login succeeded", "final_url", resp.Request.URL.Host)
				return c.Value, nil
			}
		}
	}

	return "", &backends.AuthError{
		Backend: l.backend,
		Message: fmt.Sprintf("credentials rejected (status %d, no %s cookie)", resp.StatusCode, l.badgeCookie),
	}
}

func (l *casLogin) get(ctx context.Context, client *http.Client, target string) (string, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", nil, err
	}
	return string(body), resp.Request.URL, nil
}

func (l *casLogin) authErr(msg string, err error) error {
	return &backends.AuthError{Backend: l.backend, Message: msg, Cause: err}
}

// parseLoginForm collects every hidden input of the password login form and
// the encryption salt. The form with id pwdFromId wins; otherwise the first
// form carrying an execution token is used.
func parseLoginForm(page string) (*loginForm, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, err
	}

	var forms []*loginForm
	var preferred *loginForm
	var salt string

	var walk func(n *html.Node, cur *loginForm)
	walk = func(n *html.Node, cur *loginForm) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "form":
				cur = &loginForm{action: attr(n, "action"), fields: url.Values{}}
				forms = append(forms, cur)
				if attr(n, "id") == "pwdFromId" {
					preferred = cur
				}
			case "input":
				id, name := attr(n, "id"), attr(n, "name")
				if id == "pwdEncryptSalt" || name == "pwdEncryptSalt" {
					salt = attr(n, "value")
				}
				if cur != nil && attr(n, "type") == "hidden" && name != "" {
					cur.fields.Set(name, attr(n, "value"))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, cur)
		}
	}
	walk(doc, nil)

	form := preferred
	if form == nil {
		for _, f := range forms {
			if f.fields.Get("execution") != "" {
				form = f
				break
			}
		}
	}
	if form == nil {
		return nil, fmt.Errorf("login form not found")
	}
	if form.fields.Get("execution") == "" {
		return nil, fmt.Errorf("login form has no execution token")
	}
	form.salt = salt
	return form, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setDefault(v url.Values, key, value string) {
	if v.Get(key) == "" {
		v.Set(key, value)
	}
}
