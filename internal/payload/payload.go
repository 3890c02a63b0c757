// Package payload кодирует непрозрачное подписанное содержимое талона.
//
// Строка формата base64(ticketID:rewardID:issuedAt:expiresAt) + "." + hex(HMAC-SHA256)
// отображается сканируемым кодом и позволяет позднее проверить подлинность талона
// без обращения к хранилищу.
package payload

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Claims содержит данные талона, закодированные в подписанной строке.
type Claims struct {
	TicketID  string
	RewardID  int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Encode формирует подписанную строку для указанных данных талона.
func Encode(secret []byte, c Claims) string {
	body := fmt.Sprintf("%s:%d:%d:%d", c.TicketID, c.RewardID, c.IssuedAt.Unix(), c.ExpiresAt.Unix())
	encoded := base64.RawURLEncoding.EncodeToString([]byte(body))
	return encoded + "." + sign(secret, encoded)
}

// Decode проверяет подпись и возвращает данные талона.
// Второе значение false означает повреждённую или подделанную строку.
func Decode(secret []byte, value string) (Claims, bool) {
	parts := strings.Split(value, ".")
	if len(parts) != 2 {
		return Claims{}, false
	}

	encoded, signature := parts[0], parts[1]
	expected := sign(secret, encoded)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return Claims{}, false
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Claims{}, false
	}

	fields := strings.Split(string(raw), ":")
	if len(fields) != 4 {
		return Claims{}, false
	}

	rewardID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Claims{}, false
	}
	issuedAt, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Claims{}, false
	}
	expiresAt, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Claims{}, false
	}
	if fields[0] == "" {
		return Claims{}, false
	}

	return Claims{
		TicketID:  fields[0],
		RewardID:  rewardID,
		IssuedAt:  time.Unix(issuedAt, 0).UTC(),
		ExpiresAt: time.Unix(expiresAt, 0).UTC(),
	}, true
}

func sign(secret []byte, body string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}
