package auth

import (
	"bytes"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// CodeLength is the number of digits in a TOTP code.
const CodeLength = 6

var validateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Enrollment is the setup material shown to a user enabling 2FA.
type Enrollment struct {
	Secret string
	URI    string
}

// GenerateSecret creates a fresh TOTP secret for account under issuer.
func GenerateSecret(issuer, account string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      validateOpts.Period,
		Digits:      validateOpts.Digits,
		Algorithm:   validateOpts.Algorithm,
	})
	if err != nil {
		return nil, err
	}
	return &Enrollment{Secret: key.Secret(), URI: key.URL()}, nil
}

// ValidateCode checks code against secret at now, tolerating one period of
// clock drift either way.
func ValidateCode(code, secret string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now.UTC(), validateOpts)
	return err == nil && ok
}

// ValidCodeFormat reports whether code is exactly CodeLength ASCII digits.
func ValidCodeFormat(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// RenderQR encodes the provisioning uri as a size x size PNG.
func RenderQR(uri string, size int) ([]byte, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, err
	}

	img, err := key.Image(size, size)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
