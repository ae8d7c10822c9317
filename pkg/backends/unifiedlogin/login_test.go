package unifiedlogin

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"strings"
	"testing"
)

func TestParseLoginForm(t *testing.T) {
	page := `<html><body>
<form id="qrLoginForm" action="/qr"><input type="hidden" name="qr" value="1"/></form>
<form id="pwdFromId" action="/authserver/login?service=x" method="post">
<input type="text" name="username"/>
<input type="hidden" name="execution" value="abc"/>
<input type="hidden" name="lt" value=""/>
<input type="hidden" id="pwdEncryptSalt" value="saltsaltsaltsalt"/>
</form></body></html>`

	form, err := parseLoginForm(page)
	if err != nil {
		t.Fatalf("parseLoginForm() error: %v", err)
	}
	if form.action != "/authserver/login?service=x" {
		t.Errorf("action = %q", form.action)
	}
	if form.fields.Get("execution") != "abc" {
		t.Errorf("execution = %q", form.fields.Get("execution"))
	}
	if form.salt != "saltsaltsaltsalt" {
		t.Errorf("salt = %q", form.salt)
	}
}

func TestParseLoginForm_MissingExecution(t *testing.T) {
	_, err := parseLoginForm(`<form id="pwdFromId"><input type="hidden" name="x" value="1"/></form>`)
	if err == nil || !strings.Contains(err.Error(), "execution") {
		t.Fatalf("expected execution error, got %v", err)
	}
}

func TestEncryptPassword_Decryptable(t *testing.T) {
	salt := "0123456789abcdef"
	enc, err := encryptPassword("hunter2", salt)
	if err != nil {
		t.Fatal(err)
	}

	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		t.Fatal(err)
	}
	block, _ := aes.NewCipher([]byte(salt))
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, raw)
	out = out[:len(out)-int(out[len(out)-1])]

	if got := string(out[64:]); got != "hunter2" {
		t.Errorf("decrypted password = %q", got)
	}
}

func TestEncryptPassword_BadSalt(t *testing.T) {
	if _, err := encryptPassword("x", "short"); err == nil {
		t.Fatal("expected error for invalid salt length")
	}
}

func TestParseLoginForm_IgnoresOtherForms(t *testing.T) {
	page := `<form id="qr"><input type="hidden" name="qr" value="1"/></form>
<form id="pwdFromId"><input type="hidden" name="execution" value="e"/></form>`
	form, err := parseLoginForm(page)
	if err != nil {
		t.Fatal(err)
	}
	if form.fields.Get("qr") != "" {
		t.Error("fields from another form leaked into the login form")
	}
}
