package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
)

// Encrypt seals plaintext with AES-GCM under key and returns
// base64(nonce||ciphertext). Used for OAuth token material at rest; the
// plaintext only exists inside the caller's scope.
func Encrypt(plaintext, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)

	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

// Decrypt reverses Encrypt.
func Decrypt(encryptedData string, key []byte) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return string(plaintext), nil
}
