package unifiedlogin

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

const saltAlphabet = "ABCDEFGHJKMNPQRSTWXYZabcdefhijkmnprstwxyz2345678"

// encryptPassword reproduces the login page's client-side password
// encryption: AES-CBC over 64 random characters followed by the password,
// keyed by the page salt with a random 16 character IV, PKCS#7 padded and
// base64 encoded. The server discards the first 64 plaintext bytes, so the
// IV is never transmitted.
func encryptPassword(password, salt string) (string, error) {
	key := []byte(salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("invalid password salt: %w", err)
	}

	prefix, err := randomString(64)
	if err != nil {
		return "", err
	}
	iv, err := randomString(aes.BlockSize)
	if err != nil {
		return "", err
	}

	plaintext := pkcs7Pad([]byte(prefix+password), aes.BlockSize)
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, []byte(iv)).CryptBlocks(out, plaintext)
	return base64.StdEncoding.EncodeToString(out), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func randomString(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(saltAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random string: %w", err)
		}
		out[i] = saltAlphabet[idx.Int64()]
	}
	return string(out), nil
}
