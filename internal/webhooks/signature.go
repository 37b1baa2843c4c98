package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrBadSignature is returned by VerifySignature for any mismatch or malformed header.
var ErrBadSignature = errors.New("webhooks: bad signature")

// Sign returns an X-Signature value of the form "t=<unix>,v1=<hex>". The MAC covers
// "<unix>.<body>" so a receiver can reject replays outside its tolerance.
func Sign(secret string, ts time.Time, body []byte) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + unix + ",v1=" + mac(secret, unix, body)
}

// VerifySignature checks a header produced by Sign. A zero tolerance skips the age check.
func VerifySignature(secret, header string, body []byte, tolerance time.Duration, now time.Time) error {
	var unix, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrBadSignature
		}
		switch k {
		case "t":
			unix = v
		case "v1":
			sig = v
		}
	}
	if unix == "" || sig == "" {
		return ErrBadSignature
	}
	sec, err := strconv.ParseInt(unix, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(sec, 0))
		if age > tolerance || age < -tolerance {
			return ErrBadSignature
		}
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrBadSignature
	}
	want, _ := hex.DecodeString(mac(secret, unix, body))
	if !hmac.Equal(want, got) {
		return ErrBadSignature
	}
	return nil
}

func mac(secret, unix string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(unix))
	h.Write([]byte{'.'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
